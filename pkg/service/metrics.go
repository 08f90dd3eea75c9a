package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the hub's Prometheus collectors.
type metrics struct {
	sessions   prometheus.Gauge
	messages   *prometheus.CounterVec
	changes    *prometheus.CounterVec
	deliveries prometheus.Counter
	dropped    prometheus.Counter
	rejected   *prometheus.CounterVec
	expired    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "indi",
			Subsystem: "hub",
			Name:      "sessions",
			Help:      "Connected sessions.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indi",
			Subsystem: "hub",
			Name:      "messages_received_total",
			Help:      "Inbound messages by element.",
		}, []string{"element"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indi",
			Subsystem: "registry",
			Name:      "changes_total",
			Help:      "Committed registry changes by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "indi",
			Subsystem: "router",
			Name:      "deliveries_total",
			Help:      "Messages accepted into session outboxes.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "indi",
			Subsystem: "router",
			Name:      "dropped_total",
			Help:      "Messages refused by session outboxes.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indi",
			Subsystem: "hub",
			Name:      "requests_rejected_total",
			Help:      "Rejected requests by reason.",
		}, []string{"reason"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "indi",
			Subsystem: "registry",
			Name:      "expired_total",
			Help:      "Vectors moved to Alert by timeout expiry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.messages, m.changes, m.deliveries, m.dropped, m.rejected, m.expired)
	}
	return m
}
