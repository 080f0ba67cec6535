package calls

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_started_total",
			Help: "Total number of call sessions started, by medium",
		},
		[]string{"medium"},
	)

	callsEnded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calls_ended_total",
			Help: "Total number of call sessions ended",
		},
	)

	guestTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calls_guest_tokens_issued_total",
			Help: "Total number of guest access tokens issued",
		},
	)

	guestRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_guest_rejections_total",
			Help: "Guest requests rejected, by reason",
		},
		[]string{"reason"},
	)
)
