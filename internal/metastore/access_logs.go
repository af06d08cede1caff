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

// InsertAccessLog appends one hit/miss/invalidate record. The access log
// is a one-way analytics channel: cache reads never consult it, so a
// failed insert degrades observability, not correctness.
func (db *DB) InsertAccessLog(ctx context.Context, entry *models.AccessLogEntry) error {
	query := `
		INSERT INTO access_logs (id, key, cache_type, access_type, response_time_ms, is_fallback, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query, entry.ID, entry.Key,
		nullString(entry.Type), entry.AccessType, entry.ResponseTimeMS,
		entry.IsFallback, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert access log for %q: %w", entry.Key, err)
	}
	return nil
}

// PruneAccessLogs deletes records older than the cutoff and returns how
// many were removed. Rolled-up days no longer need raw rows.
func (db *DB) PruneAccessLogs(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM access_logs WHERE ts < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune access logs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune access logs rows affected: %w", err)
	}
	return removed, nil
}
