// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voltmesh/chargeguard/internal/models"
)

// BreakerDefaults are the thresholds applied to a breaker row at lazy
// creation. Individual rows may be tuned afterwards.
type BreakerDefaults struct {
	FailureThreshold int64
	SuccessThreshold int64
	TimeoutSeconds   int64
}

// EnsureBreaker lazily creates a closed breaker row for a never-seen
// service. Implemented as an upsert-with-defaults, not check-then-insert,
// so two concurrent first-time callers for the same name converge on a
// single row.
func (db *DB) EnsureBreaker(ctx context.Context, service string, defaults BreakerDefaults) error {
	query := `
		INSERT INTO circuit_breakers (
			service_name, state, failure_threshold, success_threshold, timeout_seconds, closed_at
		) VALUES (?, 'closed', ?, ?, ?, ?)
		ON CONFLICT (service_name) DO NOTHING`

	_, err := db.conn.ExecContext(ctx, query, service,
		defaults.FailureThreshold, defaults.SuccessThreshold, defaults.TimeoutSeconds, db.now())
	if err != nil {
		return fmt.Errorf("ensure breaker %q: %w", service, err)
	}
	return nil
}

// GetBreaker returns the breaker row for a service, or ErrBreakerNotFound.
func (db *DB) GetBreaker(ctx context.Context, service string) (*models.CircuitBreakerState, error) {
	query := `
		SELECT service_name, state, failure_count, success_count,
		       failure_threshold, success_threshold, timeout_seconds,
		       opened_at, half_opened_at, closed_at, last_failure_at, last_success_at,
		       total_requests, total_successes, total_failures
		FROM circuit_breakers WHERE service_name = ?`

	var s models.CircuitBreakerState
	var state string
	var openedAt, halfOpenedAt, closedAt, lastFailureAt, lastSuccessAt sql.NullTime

	err := db.conn.QueryRowContext(ctx, query, service).Scan(
		&s.ServiceName, &state, &s.FailureCount, &s.SuccessCount,
		&s.FailureThreshold, &s.SuccessThreshold, &s.TimeoutSeconds,
		&openedAt, &halfOpenedAt, &closedAt, &lastFailureAt, &lastSuccessAt,
		&s.TotalRequests, &s.TotalSuccesses, &s.TotalFailures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBreakerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get breaker %q: %w", service, err)
	}

	s.State = models.BreakerState(state)
	s.OpenedAt = timePtr(openedAt)
	s.HalfOpenedAt = timePtr(halfOpenedAt)
	s.ClosedAt = timePtr(closedAt)
	s.LastFailureAt = timePtr(lastFailureAt)
	s.LastSuccessAt = timePtr(lastSuccessAt)
	return &s, nil
}

// UpdateBreaker writes the state machine fields of a breaker row and
// bumps the lifetime counters by the given deltas. Lifetime counters are
// in-place increments so concurrent recorders converge; the state fields
// are last-write-wins, an accepted imprecision under high concurrency.
func (db *DB) UpdateBreaker(ctx context.Context, s *models.CircuitBreakerState, lastError string, dRequests, dSuccesses, dFailures int64) error {
	query := `
		UPDATE circuit_breakers SET
			state = ?,
			failure_count = ?,
			success_count = ?,
			failure_threshold = ?,
			success_threshold = ?,
			timeout_seconds = ?,
			opened_at = ?,
			half_opened_at = ?,
			closed_at = ?,
			last_failure_at = ?,
			last_success_at = ?,
			last_error = COALESCE(?, last_error),
			total_requests = total_requests + ?,
			total_successes = total_successes + ?,
			total_failures = total_failures + ?
		WHERE service_name = ?`

	_, err := db.conn.ExecContext(ctx, query,
		string(s.State), s.FailureCount, s.SuccessCount,
		s.FailureThreshold, s.SuccessThreshold, s.TimeoutSeconds,
		nullTime(s.OpenedAt), nullTime(s.HalfOpenedAt), nullTime(s.ClosedAt),
		nullTime(s.LastFailureAt), nullTime(s.LastSuccessAt),
		nullString(lastError),
		dRequests, dSuccesses, dFailures,
		s.ServiceName)
	if err != nil {
		return fmt.Errorf("update breaker %q: %w", s.ServiceName, err)
	}
	return nil
}

// ResetBreaker forces a breaker back to closed with zeroed state
// counters. Lifetime counters are preserved. Used by the management API.
func (db *DB) ResetBreaker(ctx context.Context, service string) error {
	query := `
		UPDATE circuit_breakers SET
			state = 'closed',
			failure_count = 0,
			success_count = 0,
			closed_at = ?
		WHERE service_name = ?`

	res, err := db.conn.ExecContext(ctx, query, db.now(), service)
	if err != nil {
		return fmt.Errorf("reset breaker %q: %w", service, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", service, err)
	}
	if n == 0 {
		return ErrBreakerNotFound
	}
	return nil
}

// InsertBreakerEvent appends one success/failure/transition record for a
// service. Best-effort observability; read only by the dashboard.
func (db *DB) InsertBreakerEvent(ctx context.Context, e *BreakerEvent) error {
	query := `
		INSERT INTO breaker_events (id, service_name, event_type, prior_state, new_state, error, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query, e.ID, e.ServiceName, e.EventType,
		nullString(e.PriorState), nullString(e.NewState), nullString(e.Error), e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert breaker event for %q: %w", e.ServiceName, err)
	}
	return nil
}

// BreakerEvent is one appended breaker observability record.
type BreakerEvent struct {
	ID          string
	ServiceName string
	EventType   string // "success", "failure", "transition"
	PriorState  string
	NewState    string
	Error       string
	Timestamp   time.Time
}

// ListBreakers returns dashboard rows for all known services: lifetime
// counters joined with trailing-window failure and success rates derived
// from breaker_events.
func (db *DB) ListBreakers(ctx context.Context, window time.Duration) ([]models.BreakerDashboardRow, error) {
	since := db.now().Add(-window)

	query := `
		WITH recent AS (
			SELECT
				service_name,
				COUNT(*) FILTER (WHERE event_type = 'failure') AS failures,
				COUNT(*) FILTER (WHERE event_type = 'success') AS successes
			FROM breaker_events
			WHERE ts >= ? AND event_type IN ('failure', 'success')
			GROUP BY service_name
		)
		SELECT b.service_name, b.state, b.failure_count, b.success_count,
		       b.total_requests, b.total_successes, b.total_failures,
		       b.opened_at, b.last_failure_at, b.last_success_at,
		       COALESCE(r.failures, 0), COALESCE(r.successes, 0)
		FROM circuit_breakers b
		LEFT JOIN recent r ON b.service_name = r.service_name
		ORDER BY b.service_name`

	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list breakers: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var result []models.BreakerDashboardRow
	for rows.Next() {
		var r models.BreakerDashboardRow
		var state string
		var openedAt, lastFailureAt, lastSuccessAt sql.NullTime
		var recentFailures, recentSuccesses int64

		if err := rows.Scan(&r.ServiceName, &state, &r.FailureCount, &r.SuccessCount,
			&r.TotalRequests, &r.TotalSuccesses, &r.TotalFailures,
			&openedAt, &lastFailureAt, &lastSuccessAt,
			&recentFailures, &recentSuccesses); err != nil {
			return nil, fmt.Errorf("scan breaker row: %w", err)
		}

		r.State = models.BreakerState(state)
		r.OpenedAt = timePtr(openedAt)
		r.LastFailureAt = timePtr(lastFailureAt)
		r.LastSuccessAt = timePtr(lastSuccessAt)
		if recent := recentFailures + recentSuccesses; recent > 0 {
			r.FailureRate = float64(recentFailures) / float64(recent)
			r.SuccessRate = float64(recentSuccesses) / float64(recent)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// timePtr converts a NullTime to *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// nullTime converts a *time.Time to NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
