// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

/*
schema.go - Metadata Store Schema

Tables:
  - cache_entries: one row per logical cache key; payload bytes live in
    the key-value store, this row carries hash/size/preview, the
    freshness window, hit counters, and the is_valid soft-delete flag.
  - circuit_breakers: one row per distinct dependency name, created
    lazily on first use and never deleted. Holds the state machine
    position, state counters, per-service thresholds, transition
    timestamps, and lifetime counters.
  - breaker_events: append-only success/failure/transition records per
    service, read only by the operational dashboard for recent-window
    failure and success rates.
  - access_logs: append-only hit/miss/invalidate records used only for
    analytics rollups. Nothing in cache or breaker logic reads them.
  - cache_stats_daily: per-day per-type rollup of access_logs, upserted
    by the externally triggered analytics rollup.

All mutation is expressed as idempotent upserts so concurrent writers
converge rather than corrupt state.
*/

//nolint:staticcheck // File documentation, not package doc
package metastore

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables and indexes.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the table and index creation statements.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			cache_type TEXT NOT NULL DEFAULT 'api_result',
			content_hash TEXT NOT NULL,
			content_size_bytes BIGINT NOT NULL,
			content_preview TEXT,
			source_type TEXT,
			source_identifier TEXT,
			ttl_seconds BIGINT NOT NULL,
			cached_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			hit_count BIGINT NOT NULL DEFAULT 0,
			last_hit_at TIMESTAMP,
			is_valid BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		`CREATE TABLE IF NOT EXISTS circuit_breakers (
			service_name TEXT PRIMARY KEY,
			state TEXT NOT NULL DEFAULT 'closed',
			failure_count BIGINT NOT NULL DEFAULT 0,
			success_count BIGINT NOT NULL DEFAULT 0,
			failure_threshold BIGINT NOT NULL,
			success_threshold BIGINT NOT NULL,
			timeout_seconds BIGINT NOT NULL,
			opened_at TIMESTAMP,
			half_opened_at TIMESTAMP,
			closed_at TIMESTAMP,
			last_failure_at TIMESTAMP,
			last_success_at TIMESTAMP,
			last_error TEXT,
			total_requests BIGINT NOT NULL DEFAULT 0,
			total_successes BIGINT NOT NULL DEFAULT 0,
			total_failures BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS breaker_events (
			id UUID PRIMARY KEY,
			service_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			prior_state TEXT,
			new_state TEXT,
			error TEXT,
			ts TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS access_logs (
			id UUID PRIMARY KEY,
			key TEXT NOT NULL,
			cache_type TEXT,
			access_type TEXT NOT NULL,
			response_time_ms BIGINT NOT NULL DEFAULT 0,
			is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
			ts TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cache_stats_daily (
			day DATE NOT NULL,
			cache_type TEXT NOT NULL,
			hits BIGINT NOT NULL DEFAULT 0,
			misses BIGINT NOT NULL DEFAULT 0,
			invalidations BIGINT NOT NULL DEFAULT 0,
			fallbacks BIGINT NOT NULL DEFAULT 0,
			avg_latency_ms DOUBLE NOT NULL DEFAULT 0,
			PRIMARY KEY (day, cache_type)
		)`,

		// Expiry cleanup and pattern invalidation scan by these columns.
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_type ON cache_entries (cache_type)`,

		// Windowed analytics aggregate over recent access logs.
		`CREATE INDEX IF NOT EXISTS idx_access_logs_ts ON access_logs (ts)`,
		`CREATE INDEX IF NOT EXISTS idx_access_logs_type_ts ON access_logs (cache_type, ts)`,

		// Breaker dashboard computes recent-window rates per service.
		`CREATE INDEX IF NOT EXISTS idx_breaker_events_service_ts ON breaker_events (service_name, ts)`,
	}
}
