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
	"strings"
	"time"

	"github.com/voltmesh/chargeguard/internal/models"
)

// UpsertEntry inserts or fully replaces the metadata row for a cache key.
// A replacing upsert resets the freshness window and revalidates the
// entry; hit counters survive so per-key usage stays monotonic across
// refreshes of the same logical key.
func (db *DB) UpsertEntry(ctx context.Context, e *models.CacheEntry) error {
	query := `
		INSERT INTO cache_entries (
			key, cache_type, content_hash, content_size_bytes, content_preview,
			source_type, source_identifier, ttl_seconds, cached_at, expires_at,
			hit_count, last_hit_at, is_valid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, TRUE)
		ON CONFLICT (key) DO UPDATE SET
			cache_type = excluded.cache_type,
			content_hash = excluded.content_hash,
			content_size_bytes = excluded.content_size_bytes,
			content_preview = excluded.content_preview,
			source_type = excluded.source_type,
			source_identifier = excluded.source_identifier,
			ttl_seconds = excluded.ttl_seconds,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at,
			is_valid = TRUE`

	_, err := db.conn.ExecContext(ctx, query,
		e.Key, e.Type, e.ContentHash, e.ContentSizeBytes, e.ContentPreview,
		nullString(e.SourceType), nullString(e.SourceIdentifier),
		e.TTLSeconds, e.CachedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry %q: %w", e.Key, err)
	}
	return nil
}

// GetEntry returns the metadata row for a key, or ErrEntryNotFound.
// Invalid (soft-deleted) rows are returned as-is; the cache engine
// decides how to treat them.
func (db *DB) GetEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	query := `
		SELECT key, cache_type, content_hash, content_size_bytes, content_preview,
		       source_type, source_identifier, ttl_seconds, cached_at, expires_at,
		       hit_count, last_hit_at, is_valid
		FROM cache_entries WHERE key = ?`

	row := db.conn.QueryRowContext(ctx, query, key)
	return scanEntry(row)
}

// RecordHit bumps the hit counter and last-hit timestamp for a key.
// Expressed as a single in-place increment so concurrent readers
// converge without read-modify-write races.
func (db *DB) RecordHit(ctx context.Context, key string, at time.Time) error {
	query := `UPDATE cache_entries SET hit_count = hit_count + 1, last_hit_at = ? WHERE key = ?`
	if _, err := db.conn.ExecContext(ctx, query, at, key); err != nil {
		return fmt.Errorf("record hit for %q: %w", key, err)
	}
	return nil
}

// MarkStale forces an entry past its freshness window without touching
// the payload, so the next read refetches while the old data remains a
// fallback. Idempotent; marking a missing key is a no-op.
func (db *DB) MarkStale(ctx context.Context, key string, at time.Time) error {
	query := `UPDATE cache_entries SET expires_at = ? WHERE key = ? AND expires_at > ?`
	if _, err := db.conn.ExecContext(ctx, query, at, key, at); err != nil {
		return fmt.Errorf("mark stale %q: %w", key, err)
	}
	return nil
}

// MarkInvalid soft-deletes an entry: it stops counting as a valid hit but
// remains addressable as fallback data until hard-deleted or cleaned up.
func (db *DB) MarkInvalid(ctx context.Context, key string) error {
	query := `UPDATE cache_entries SET is_valid = FALSE WHERE key = ?`
	if _, err := db.conn.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("mark invalid %q: %w", key, err)
	}
	return nil
}

// DeleteEntry removes the metadata row. Returns whether a row existed.
func (db *DB) DeleteEntry(ctx context.Context, key string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete cache entry %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for %q: %w", key, err)
	}
	return n > 0, nil
}

// KeysMatching returns all keys matching a glob pattern where '*' is the
// only wildcard. The pattern is translated to SQL LIKE with literal '%',
// '_', and '\' escaped so user patterns cannot match unintended keys.
func (db *DB) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		globToLike(pattern))
	if err != nil {
		return nil, fmt.Errorf("keys matching %q: %w", pattern, err)
	}
	defer closeWithLog(rows, "rows")

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ExpiredKeys returns all keys whose freshness window ended before asOf.
func (db *DB) ExpiredKeys(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE expires_at < ? ORDER BY key`, asOf)
	if err != nil {
		return nil, fmt.Errorf("expired keys: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Stats aggregates entry counts and the trailing-24h hit rate.
func (db *DB) Stats(ctx context.Context) (*models.CacheStats, error) {
	now := db.now()
	stats := &models.CacheStats{}

	entryQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_valid AND expires_at > ?),
			COUNT(*) FILTER (WHERE expires_at <= ?),
			COALESCE(SUM(hit_count), 0),
			COALESCE(SUM(content_size_bytes), 0)
		FROM cache_entries`

	err := db.conn.QueryRowContext(ctx, entryQuery, now, now).Scan(
		&stats.TotalEntries, &stats.ValidEntries, &stats.ExpiredEntries,
		&stats.TotalHits, &stats.ApproxSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("entry stats: %w", err)
	}

	if stats.TotalEntries > 0 {
		stats.AvgHitsPerEntry = float64(stats.TotalHits) / float64(stats.TotalEntries)
	}

	since := now.Add(-24 * time.Hour)
	windowQuery := `
		SELECT
			COUNT(*) FILTER (WHERE access_type = 'hit'),
			COUNT(*) FILTER (WHERE access_type IN ('hit', 'miss')),
			COUNT(*) FILTER (WHERE is_fallback)
		FROM access_logs WHERE ts >= ?`

	var hits, lookups int64
	err = db.conn.QueryRowContext(ctx, windowQuery, since).Scan(
		&hits, &lookups, &stats.FallbackServes24h)
	if err != nil {
		return nil, fmt.Errorf("window stats: %w", err)
	}
	if lookups > 0 {
		stats.HitRate24h = float64(hits) / float64(lookups)
	}

	return stats, nil
}

// TypePerformance returns the per-type breakdown over the trailing 24h:
// entry counts joined with hit/miss/fallback counts and latency
// aggregates from the access log.
func (db *DB) TypePerformance(ctx context.Context) ([]models.TypePerformance, error) {
	since := db.now().Add(-24 * time.Hour)

	query := `
		WITH entry_counts AS (
			SELECT cache_type, COUNT(*) AS entries
			FROM cache_entries
			GROUP BY cache_type
		),
		window_stats AS (
			SELECT
				cache_type,
				COUNT(*) FILTER (WHERE access_type = 'hit') AS hits,
				COUNT(*) FILTER (WHERE access_type = 'miss') AS misses,
				COUNT(*) FILTER (WHERE is_fallback) AS fallbacks,
				COALESCE(AVG(response_time_ms), 0) AS avg_latency,
				COALESCE(quantile_cont(response_time_ms, 0.95), 0) AS p95_latency
			FROM access_logs
			WHERE ts >= ? AND cache_type IS NOT NULL
			GROUP BY cache_type
		)
		SELECT
			COALESCE(e.cache_type, w.cache_type),
			COALESCE(e.entries, 0),
			COALESCE(w.hits, 0),
			COALESCE(w.misses, 0),
			COALESCE(w.fallbacks, 0),
			COALESCE(w.avg_latency, 0),
			COALESCE(w.p95_latency, 0)
		FROM entry_counts e
		FULL OUTER JOIN window_stats w ON e.cache_type = w.cache_type
		ORDER BY 1`

	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("type performance: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var result []models.TypePerformance
	for rows.Next() {
		var tp models.TypePerformance
		if err := rows.Scan(&tp.Type, &tp.Entries, &tp.Hits24h, &tp.Misses24h,
			&tp.Fallbacks24h, &tp.AvgLatencyMS, &tp.P95LatencyMS); err != nil {
			return nil, fmt.Errorf("scan type performance: %w", err)
		}
		if total := tp.Hits24h + tp.Misses24h; total > 0 {
			tp.HitRate24h = float64(tp.Hits24h) / float64(total)
		}
		result = append(result, tp)
	}
	return result, rows.Err()
}

// scanEntry scans one cache_entries row.
func scanEntry(row *sql.Row) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var preview, sourceType, sourceID sql.NullString
	var lastHit sql.NullTime

	err := row.Scan(&e.Key, &e.Type, &e.ContentHash, &e.ContentSizeBytes, &preview,
		&sourceType, &sourceID, &e.TTLSeconds, &e.CachedAt, &e.ExpiresAt,
		&e.HitCount, &lastHit, &e.IsValid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	e.ContentPreview = preview.String
	e.SourceType = sourceType.String
	e.SourceIdentifier = sourceID.String
	if lastHit.Valid {
		e.LastHitAt = &lastHit.Time
	}
	return &e, nil
}

// globToLike translates a '*' glob into a LIKE pattern, escaping LIKE
// metacharacters in the literal parts.
func globToLike(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nullString maps "" to NULL for optional text columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
