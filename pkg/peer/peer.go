package peer

import (
	"context"

	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/monitoring"
	"github.com/rostrumapp/rostrum/pkg/service"
)

// Peer is a headless mesh participant. It connects to the relay,
// joins the configured room, and keeps sessions to every member.
type Peer struct {
	conf     config.PeerConfig
	manager  *Manager
	services service.Group
	done     chan struct{}
	log      *logger.Logger
}

func New(conf config.PeerConfig, src Source, log *logger.Logger) (*Peer, error) {
	manager, err := NewManager(conf, src, log)
	if err != nil {
		return nil, err
	}
	p := &Peer{conf: conf, manager: manager, done: make(chan struct{}), log: log}
	if conf.Peer.Monitoring.IsEnabled() {
		p.services.Add(monitoring.New(conf.Peer.Monitoring, "peer", log))
	}
	return p, nil
}

func (p *Peer) Start() error {
	done, err := p.manager.Connect()
	if err != nil {
		return err
	}
	if err := p.manager.Join(p.conf.Peer.Room); err != nil {
		return err
	}
	go func() {
		<-done
		p.manager.handleDisconnect()
		close(p.done)
	}()
	p.services.Start()
	return nil
}

// Done closes after the relay socket died and the mesh was torn down.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Stop(ctx context.Context) error {
	p.manager.Close()
	return p.services.Shutdown(ctx)
}
