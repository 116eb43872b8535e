// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package metrics exposes Prometheus instrumentation for sync passes,
// CRM requests, token acquisition, lookup resolution and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync pass metrics
	SyncPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casesync_pass_duration_seconds",
			Help:    "Duration of sync passes in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"mode"}, // "full", "incremental"
	)

	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_passes_total",
			Help: "Total number of sync passes by outcome",
		},
		[]string{"mode", "result"}, // result: "completed", "failed", "interrupted", "busy"
	)

	CasesPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_cases_pushed_total",
			Help: "Total number of case pushes to the CRM",
		},
		[]string{"operation", "result"}, // operation: "create", "update"; result: "success", "failure"
	)

	RemoteRecordsPulled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_remote_records_pulled_total",
			Help: "Total number of remote case records processed by pull reconciliation",
		},
		[]string{"result"}, // "reconciled", "skipped", "not_found", "failure"
	)

	LastSuccessfulPass = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "casesync_last_successful_pass_timestamp",
			Help: "Unix timestamp of the last completed pass per company",
		},
		[]string{"company"},
	)

	// CRM client metrics
	CRMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casesync_crm_request_duration_seconds",
			Help:    "Duration of CRM API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"style", "method"},
	)

	CRMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_crm_requests_total",
			Help: "Total number of CRM API requests by status class",
		},
		[]string{"style", "method", "status"}, // status: "2xx", "4xx", "5xx", "error"
	)

	TokenFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_token_fetches_total",
			Help: "Total number of OAuth token requests to the identity service",
		},
		[]string{"result"}, // "success", "failure"
	)

	TokenInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "casesync_token_invalidations_total",
			Help: "Total number of cached tokens dropped after an authentication failure",
		},
	)

	LookupResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_lookup_resolutions_total",
			Help: "Total number of lookup name resolutions",
		},
		[]string{"kind", "result"}, // result: "cache_hit", "resolved", "unresolved", "error"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event publishing
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_events_published_total",
			Help: "Total number of sync events published",
		},
		[]string{"topic", "result"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casesync_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordPass records the outcome of one sync pass.
func RecordPass(mode, result string, duration time.Duration) {
	SyncPassDuration.WithLabelValues(mode).Observe(duration.Seconds())
	SyncPassesTotal.WithLabelValues(mode, result).Inc()
}

// RecordPush records one case push.
func RecordPush(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	CasesPushed.WithLabelValues(operation, result).Inc()
}

// RecordCRMRequest records one CRM HTTP request. statusCode 0 means the
// request never produced a response.
func RecordCRMRequest(style, method string, statusCode int, duration time.Duration) {
	CRMRequestDuration.WithLabelValues(style, method).Observe(duration.Seconds())
	CRMRequestsTotal.WithLabelValues(style, method, statusClass(statusCode)).Inc()
}

// RecordTokenFetch records one identity service call.
func RecordTokenFetch(err error) {
	if err != nil {
		TokenFetches.WithLabelValues("failure").Inc()
		return
	}
	TokenFetches.WithLabelValues("success").Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "error"
	}
}
