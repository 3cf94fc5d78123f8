// Package metrics holds the process Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fident",
		Name:      "onboarding_transitions_total",
		Help:      "Onboarding state transitions by source and target state.",
	}, []string{"from", "to"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fident",
		Name:      "operation_errors_total",
		Help:      "Failed onboarding operations by operation and error code.",
	}, []string{"operation", "code"})

	bindDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fident",
		Name:      "identity_bind_duration_seconds",
		Help:      "Time to sign and submit an identity-binding transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fident",
		Name:      "api_requests_total",
		Help:      "Local API requests by route and status code.",
	}, []string{"route", "status"})
)

// ObserveTransition counts one state change.
func ObserveTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// ObserveError counts one failed operation.
func ObserveError(operation, code string) {
	operationErrors.WithLabelValues(operation, code).Inc()
}

// ObserveBind records the duration of a bind attempt that started at start.
func ObserveBind(start time.Time) {
	bindDuration.Observe(time.Since(start).Seconds())
}

// ObserveRequest counts one API request.
func ObserveRequest(route, status string) {
	apiRequests.WithLabelValues(route, status).Inc()
}
