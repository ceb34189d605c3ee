// Package metrics holds the Prometheus collectors for the complaint pipeline.
// HTTP traffic metrics live in the middleware package; these cover what
// happens behind the submit endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes.
const (
	OutcomeCompleted      = "completed"
	OutcomeValidation     = "validation_failed"
	OutcomeClassification = "classification_failed"
	OutcomeStore          = "store_failed"
	OutcomeReplayed       = "replayed"
)

// Classifier request results.
const (
	ResultOK        = "ok"
	ResultRetry     = "retry"
	ResultError     = "error"
	ResultBadOutput = "bad_output"
)

var (
	// SubmissionsTotal counts finished submissions by outcome.
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_submissions_total",
			Help: "Total number of complaint submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// ClassifierRequestsTotal counts individual classifier attempts.
	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_requests_total",
			Help: "Total number of classifier attempts by result.",
		},
		[]string{"result"},
	)

	ClassifierRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classifier_request_duration_seconds",
			Help:    "Duration of classifier attempts in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	NotifySubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_subscribers",
			Help: "Current number of change notifier subscriptions.",
		},
	)

	// RateLimitedTotal counts requests rejected with 429, by method.
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		},
		[]string{"method"},
	)

	// NotifyEventsDropped counts events not delivered because a subscriber's
	// buffer was full.
	NotifyEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_events_dropped_total",
			Help: "Total number of change events dropped for slow subscribers.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		ClassifierRequestsTotal,
		ClassifierRequestDuration,
		NotifySubscribers,
		NotifyEventsDropped,
		RateLimitedTotal,
	)
}
