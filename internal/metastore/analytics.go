// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/voltmesh/chargeguard/internal/models"
)

// RollupDaily aggregates access_logs for the given UTC day into
// cache_stats_daily, one row per cache type. Re-running for the same day
// replaces the previous rollup, so a partial day can be re-rolled once it
// completes. Returns the number of type rows written.
func (db *DB) RollupDaily(ctx context.Context, day time.Time) (int64, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		INSERT INTO cache_stats_daily (day, cache_type, hits, misses, invalidations, fallbacks, avg_latency_ms)
		SELECT
			CAST(? AS DATE),
			COALESCE(cache_type, 'unknown'),
			COUNT(*) FILTER (WHERE access_type = 'hit'),
			COUNT(*) FILTER (WHERE access_type = 'miss'),
			COUNT(*) FILTER (WHERE access_type = 'invalidate'),
			COUNT(*) FILTER (WHERE is_fallback),
			COALESCE(AVG(response_time_ms) FILTER (WHERE access_type = 'hit'), 0)
		FROM access_logs
		WHERE ts >= ? AND ts < ?
		GROUP BY COALESCE(cache_type, 'unknown')
		ON CONFLICT (day, cache_type) DO UPDATE SET
			hits = EXCLUDED.hits,
			misses = EXCLUDED.misses,
			invalidations = EXCLUDED.invalidations,
			fallbacks = EXCLUDED.fallbacks,
			avg_latency_ms = EXCLUDED.avg_latency_ms`

	result, err := db.conn.ExecContext(ctx, query, dayStart, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("rollup daily stats for %s: %w", dayStart.Format("2006-01-02"), err)
	}
	written, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rollup rows affected: %w", err)
	}
	return written, nil
}

// DailyStats returns rollup rows for the trailing number of days, newest
// first.
func (db *DB) DailyStats(ctx context.Context, days int) ([]models.DailyCacheStats, error) {
	since := db.now().UTC().AddDate(0, 0, -days)

	query := `
		SELECT day, cache_type, hits, misses, invalidations, fallbacks, avg_latency_ms
		FROM cache_stats_daily
		WHERE day >= CAST(? AS DATE)
		ORDER BY day DESC, cache_type`

	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var result []models.DailyCacheStats
	for rows.Next() {
		var s models.DailyCacheStats
		if err := rows.Scan(&s.Day, &s.Type, &s.Hits, &s.Misses,
			&s.Invalidations, &s.Fallbacks, &s.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scan daily stats row: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
