// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the resilience layer:
// - Cache engine efficiency (hits, misses, stale fallbacks)
// - Circuit breaker state and transitions per dependency
// - Upstream fetch latency as observed by the orchestrator
// - Store adapter failures (key-value and metadata)
// - Management API request metrics

var (
	// Cache Engine Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "api_result", "kb_article", "translation"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheFallbackServes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_cache_fallback_serves_total",
			Help: "Total number of stale cache entries served as fallbacks",
		},
		[]string{"cache_type", "reason"}, // reason: "circuit_open", "fetch_failed"
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chargeguard_cache_invalidations_total",
			Help: "Total number of cache entries removed by delete or pattern invalidation",
		},
	)

	CacheCleanupRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chargeguard_cache_cleanup_removed_total",
			Help: "Total number of expired entries removed by cleanup sweeps",
		},
	)

	// Circuit Breaker Metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chargeguard_breaker_state",
			Help: "Circuit breaker state per service (0=closed, 1=half_open, 2=open)",
		},
		[]string{"service"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"service", "from", "to"},
	)

	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_breaker_rejections_total",
			Help: "Total number of requests rejected by an open circuit",
		},
		[]string{"service"},
	)

	// Orchestrator Metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chargeguard_fetch_duration_seconds",
			Help:    "Duration of caller-supplied fetch operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "outcome"}, // outcome: "success", "failure"
	)

	// Store Adapter Metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_store_errors_total",
			Help: "Total number of storage backend errors",
		},
		[]string{"store", "operation"}, // store: "kv", "metadata"
	)

	// Management API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chargeguard_api_requests_total",
			Help: "Total number of management API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chargeguard_api_request_duration_seconds",
			Help:    "Management API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chargeguard_api_active_requests",
			Help: "Current number of in-flight management API requests",
		},
	)
)

// RecordAPIRequest records API endpoint metrics.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordFetch records the outcome and latency of a caller-supplied fetch.
func RecordFetch(service string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if service == "" {
		service = "untracked"
	}
	FetchDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

// RecordStoreError records a storage backend failure.
func RecordStoreError(store, operation string) {
	StoreErrors.WithLabelValues(store, operation).Inc()
}

// SetBreakerState updates the state gauge for a service.
// States map to 0=closed, 1=half_open, 2=open; unknown states map to -1.
func SetBreakerState(service, state string) {
	var v float64
	switch state {
	case "closed":
		v = 0
	case "half_open":
		v = 1
	case "open":
		v = 2
	default:
		v = -1
	}
	BreakerState.WithLabelValues(service).Set(v)
}
