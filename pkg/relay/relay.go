package relay

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/monitoring"
	"github.com/rostrumapp/rostrum/pkg/network/httpx"
	"github.com/rostrumapp/rostrum/pkg/service"
)

// Relay is the signaling service. It terminates peer websockets,
// tracks rooms, and forwards negotiation envelopes between members.
type Relay struct {
	conf     config.RelayConfig
	services service.Group
	log      *logger.Logger
}

func New(conf config.RelayConfig, log *logger.Logger) (*Relay, error) {
	r := &Relay{conf: conf, log: log}
	hub := NewHub(conf, prometheus.DefaultRegisterer, log)
	h, err := NewHTTPServer(conf, log, func(mux *httpx.Mux) *httpx.Mux {
		return mux.HandleFunc("/ws", hub.handleMemberConnection)
	})
	if err != nil {
		return nil, err
	}
	r.services.Add(h)
	if conf.Relay.Monitoring.IsEnabled() {
		r.services.Add(monitoring.New(conf.Relay.Monitoring, "relay", log))
	}
	return r, nil
}

func NewHTTPServer(conf config.RelayConfig, log *logger.Logger, fnMux func(*httpx.Mux) *httpx.Mux) (*httpx.Server, error) {
	return httpx.NewServer(
		conf.Relay.Server.GetAddr(),
		func(serv *httpx.Server) http.Handler {
			h := serv.Mux()
			h.HandleFunc("/health", func(w httpx.ResponseWriter, _ *httpx.Request) {
				w.WriteHeader(http.StatusOK)
			})
			return fnMux(h)
		},
		httpx.WithServerConfig(conf.Relay.Server),
		httpx.WithLogger(log),
	)
}

func (r *Relay) Start()                         { r.services.Start() }
func (r *Relay) Stop(ctx context.Context) error { return r.services.Shutdown(ctx) }
