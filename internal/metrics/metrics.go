package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnswerResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_resolutions_total",
			Help: "Total number of answered queries by channel and provenance",
		},
		[]string{"channel", "source"},
	)

	AnswerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answer_duration_seconds",
			Help:    "End-to-end time to produce an answer envelope",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 8, 10},
		},
		[]string{"channel"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answer_stage_duration_seconds",
			Help:    "Duration of each cascade stage",
			Buckets: []float64{0.005, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6},
		},
		[]string{"stage", "outcome"},
	)

	GeneratorAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generator_attempts_total",
			Help: "Calls made to the completion service by prompt variant and result",
		},
		[]string{"variant", "outcome"},
	)

	RetryAborts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "answer_retry_aborts_total",
			Help: "Rate-limit retries abandoned because the request budget could not fit them",
		},
	)

	InboundThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_throttled_total",
			Help: "Inbound messages dropped by the per-client rate limiter",
		},
		[]string{"channel"},
	)
)
