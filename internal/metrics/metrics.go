// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation", "table", "error_type"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	// Queue Metrics
	QueueMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_mutations_total",
			Help: "Total number of queue mutations by operation and result",
		},
		[]string{"operation", "result"}, // result: ok, not_found, validation, persistence
	)

	// Notifier Metrics
	NotifierPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_events_published_total",
			Help: "Total number of change events published",
		},
		[]string{"kind", "result"},
	)

	NotifierDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_events_delivered_total",
			Help: "Total number of change events handed to subscribers",
		},
		[]string{"kind"},
	)

	NotifierActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_active_subscriptions",
			Help: "Current number of open change subscriptions",
		},
	)

	// Viewer Metrics
	ViewerResyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewer_resyncs_total",
			Help: "Total number of viewer resubscribe and re-seed cycles",
		},
		[]string{"reason"}, // dropped, resync, session_change
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"role"},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_circuit_breaker_requests_total",
			Help: "Total number of requests through the store circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)
)

// RecordDBQuery records a store operation. Pass a nil err for expected
// outcomes such as a missing row.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table, errorType(err)).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordMutation records the outcome of a queue mutation.
func RecordMutation(operation, result string) {
	QueueMutations.WithLabelValues(operation, result).Inc()
}

// RecordPublish records a notifier publish attempt.
func RecordPublish(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	NotifierPublished.WithLabelValues(kind, result).Inc()
}

// RecordDelivery records one event handed to a subscriber.
func RecordDelivery(kind string) {
	NotifierDelivered.WithLabelValues(kind).Inc()
}

// TrackSubscription tracks open notifier subscriptions.
func TrackSubscription(inc bool) {
	if inc {
		NotifierActiveSubscriptions.Inc()
	} else {
		NotifierActiveSubscriptions.Dec()
	}
}

// RecordResync records a viewer resubscribe cycle.
func RecordResync(reason string) {
	ViewerResyncs.WithLabelValues(reason).Inc()
}

// TrackWSConnection tracks websocket connections per viewer role.
func TrackWSConnection(role string, inc bool) {
	if inc {
		WSConnections.WithLabelValues(role).Inc()
	} else {
		WSConnections.WithLabelValues(role).Dec()
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
