package push

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts hub activity. Register it on the registry served at /metrics.
type Metrics struct {
	connections prometheus.Gauge
	published   *prometheus.CounterVec
	delivered   prometheus.Counter
	dropped     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memberhub_push_connections",
			Help: "Number of open push connections.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberhub_push_events_published_total",
			Help: "Events published to the hub, by event type.",
		}, []string{"type"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_push_events_delivered_total",
			Help: "Event frames queued to connections.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_push_connections_dropped_total",
			Help: "Connections closed because their send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.published, m.delivered, m.dropped)
	}
	return m
}
