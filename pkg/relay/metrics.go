package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	connections prometheus.Gauge
	joins       prometheus.Counter
	relayed     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func newMetrics(rooms *Registry, reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relay_rooms",
		Help: "Number of active rooms.",
	}, func() float64 { n, _ := rooms.Counts(); return float64(n) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relay_room_members",
		Help: "Number of members across all rooms.",
	}, func() float64 { _, n := rooms.Counts(); return float64(n) })

	return &metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of open signaling connections.",
		}),
		joins: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_joins_total",
			Help: "Number of processed room joins.",
		}),
		relayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_envelopes_total",
			Help: "Number of forwarded signaling envelopes.",
		}, []string{"type"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dropped_total",
			Help: "Number of dropped packets.",
		}, []string{"reason"}),
	}
}
