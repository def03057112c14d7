// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package metrics holds the Prometheus collectors for Scuttle. All
// collectors register with the default registry through promauto and are
// exposed by the /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP layer
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scuttle_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scuttle_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// Dispatcher
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_dispatch_total",
			Help: "Dispatched backend requests by module and outcome",
		},
		// outcome: ok, cached, not_found, login_error, forbidden, failure
		[]string{"module", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scuttle_dispatch_duration_seconds",
			Help:    "Time spent producing a module response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module"},
	)

	// Response cache
	ResponseCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_response_cache_hits_total",
			Help: "Response cache hits by module",
		},
		[]string{"module"},
	)

	ResponseCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_response_cache_misses_total",
			Help: "Response cache misses by module",
		},
		[]string{"module"},
	)

	ResponseCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scuttle_response_cache_evictions_total",
			Help: "Number of cached responses dropped by eviction",
		},
	)

	ResponseCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scuttle_response_cache_entries",
			Help: "Current number of cached responses",
		},
	)

	// Job queue
	JobsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_jobs_executed_total",
			Help: "Executed background jobs by result",
		},
		[]string{"result"}, // success, error, panic
	)

	JobsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scuttle_jobs_cancelled_total",
			Help: "Queued jobs cancelled before running",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scuttle_job_duration_seconds",
			Help:    "Background job execution time",
			Buckets: prometheus.DefBuckets,
		},
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scuttle_job_queue_depth",
			Help: "Jobs waiting in the queue",
		},
	)

	// Modules
	ModulesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scuttle_modules_registered",
			Help: "Number of mounted modules",
		},
	)

	ModuleLoadProblems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_module_load_issues_total",
			Help: "Module load problems and warnings",
		},
		[]string{"severity"}, // problem, warning
	)

	// Authentication
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_login_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	// Circuit breaker around the user store
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scuttle_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_circuit_breaker_requests_total",
			Help: "Calls through a circuit breaker by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)

	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scuttle_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuttle_db_query_errors_total",
			Help: "Failed database queries",
		},
		[]string{"operation"},
	)

	DBScopeRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scuttle_db_scope_rollbacks_total",
			Help: "Transactions left open by a request and rolled back on release",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDispatch records one dispatched request.
func RecordDispatch(module, outcome string, duration time.Duration) {
	if module == "" {
		module = "none"
	}
	DispatchTotal.WithLabelValues(module, outcome).Inc()
	if duration > 0 {
		DispatchDuration.WithLabelValues(module).Observe(duration.Seconds())
	}
}

// RecordJob records a finished job execution.
func RecordJob(result string, duration time.Duration) {
	JobsExecuted.WithLabelValues(result).Inc()
	JobDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
