package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of registered realtime connections",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total number of events published, by type",
		},
		[]string{"type"},
	)

	deliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_dropped_total",
			Help: "Deliveries dropped because a connection was full or closed",
		},
	)

	relayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_failures_total",
			Help: "Cross-node relay failures",
		},
		[]string{"op"},
	)

	usersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_users_online",
			Help: "Number of users currently considered online",
		},
	)
)
