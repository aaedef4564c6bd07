// Package metrics provides Prometheus instrumentation for the matchmaking
// service. It exposes gauges for per-cohort queue depth, counters for match
// outcomes, and a histogram of how long users waited before being matched.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth tracks the current number of waiting users per cohort.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "koibridge_queue_depth",
		Help: "Current number of waiting users per cohort",
	}, []string{"cohort"})

	// MatchesTotal counts successfully created matches.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "koibridge_matches_total",
		Help: "Total number of matches created",
	})

	// CancellationsTotal counts explicit waiting-queue cancellations.
	CancellationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "koibridge_cancellations_total",
		Help: "Total number of cancelled waiting records",
	})

	// ExpiredTotal counts waiting records reaped after the waiting deadline.
	ExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "koibridge_expired_waiting_total",
		Help: "Total number of waiting records expired by the reaper",
	})

	// MatchWaitSeconds records time from enqueue to successful claim.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "koibridge_match_wait_seconds",
		Help:    "Time a matched user spent in the waiting queue",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
	})

	// MessagesTotal counts chat messages stored.
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "koibridge_messages_total",
		Help: "Total number of chat messages stored",
	})
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		MatchesTotal,
		CancellationsTotal,
		ExpiredTotal,
		MatchWaitSeconds,
		MessagesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
