package service

import (
	"context"
	"fmt"
)

// Service is anything with a lifecycle worth grouping.
type Service interface{}

// RunnableService runs in the background until shut down.
type RunnableService interface {
	Service

	Run()
	Shutdown(ctx context.Context) error
}

// Group starts and stops a set of services in one go.
type Group struct {
	list []Service
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

// Start runs every runnable service of the group.
func (g *Group) Start() {
	for _, s := range g.list {
		if v, ok := s.(RunnableService); ok {
			v.Run()
		}
	}
}

// Shutdown stops the group, collecting errors instead of failing on
// the first one.
func (g *Group) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, s := range g.list {
		v, ok := s.(RunnableService)
		if !ok {
			continue
		}
		if e := v.Shutdown(ctx); e != nil && e != context.Canceled {
			errs = append(errs, fmt.Errorf("stop of [%s] failed: %v", s, e))
		}
	}
	if len(errs) > 0 {
		err = fmt.Errorf("%s", errs)
	}
	return
}
