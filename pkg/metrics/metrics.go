// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StreamSessionDuration tracks how long a stream session stays open.
	StreamSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_session_duration_seconds",
			Help:    "Stream session duration from open to close",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "reason"},
	)

	// StreamSessionsTotal tracks closed stream sessions by reason.
	StreamSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_sessions_total",
			Help: "Total stream sessions by close reason",
		},
		[]string{"reason"},
	)

	// StreamSessionsActive tracks open stream sessions (0 or 1 per process).
	StreamSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_sessions_active",
			Help: "Number of open stream sessions",
		},
	)

	// StreamEventsTotal tracks inbound stream events.
	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_total",
			Help: "Total inbound stream events",
		},
		[]string{"kind"},
	)

	// CommitsTotal tracks commit pipeline calls.
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commits_total",
			Help: "Total commit pipeline calls",
		},
		[]string{"sender", "status"},
	)

	// SSESubscribersActive tracks browser pages subscribed to the event feed.
	SSESubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_subscribers_active",
			Help: "Number of active SSE subscribers",
		},
	)

	// BusPublishTotal tracks event bus publications.
	BusPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Total event bus publications",
		},
		[]string{"kind", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSessionClosed records metrics for a finished stream session.
func RecordSessionClosed(model, reason string, duration float64) {
	StreamSessionDuration.WithLabelValues(model, reason).Observe(duration)
	StreamSessionsTotal.WithLabelValues(reason).Inc()
}

// RecordStreamEvent counts one inbound stream event.
func RecordStreamEvent(kind string) {
	StreamEventsTotal.WithLabelValues(kind).Inc()
}

// RecordCommit counts one commit attempt.
func RecordCommit(sender, status string) {
	CommitsTotal.WithLabelValues(sender, status).Inc()
}

// RecordBusPublish counts one event bus publication.
func RecordBusPublish(kind, status string) {
	BusPublishTotal.WithLabelValues(kind, status).Inc()
}

// IncrementSSESubscribers increments the active SSE subscriber count.
func IncrementSSESubscribers() {
	SSESubscribersActive.Inc()
}

// DecrementSSESubscribers decrements the active SSE subscriber count.
func DecrementSSESubscribers() {
	SSESubscribersActive.Dec()
}
