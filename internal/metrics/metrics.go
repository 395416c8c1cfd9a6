package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorph_transport_attempts_total",
			Help: "Upstream request attempts by route and outcome",
		},
		[]string{"route", "outcome"},
	)

	TransportFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorph_transport_fallbacks_total",
			Help: "Times a direct request switched to the relay route",
		},
	)

	SearchBranches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorph_search_branches_total",
			Help: "Search provider invocations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	SearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lorph_search_results",
			Help:    "Number of results returned by an aggregated search",
			Buckets: []float64{0, 1, 3, 5, 10, 15, 20},
		},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "lorph_search_duration_seconds",
			Help: "Duration of aggregated searches in seconds",
		},
	)

	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorph_turns_total",
			Help: "Conversation turns by final state",
		},
		[]string{"state"},
	)
)

// Outcome labels
const (
	OutcomeOK        = "ok"
	OutcomeRetryable = "retryable"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeEmpty     = "empty"
)
