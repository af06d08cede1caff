// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltmesh/chargeguard/internal/kvstore"
	"github.com/voltmesh/chargeguard/internal/logging"
	"github.com/voltmesh/chargeguard/internal/metastore"
	"github.com/voltmesh/chargeguard/internal/metrics"
	"github.com/voltmesh/chargeguard/internal/models"
)

// MetadataStore is the relational metadata port. *metastore.DB implements
// it; tests substitute fakes.
type MetadataStore interface {
	UpsertEntry(ctx context.Context, e *models.CacheEntry) error
	GetEntry(ctx context.Context, key string) (*models.CacheEntry, error)
	RecordHit(ctx context.Context, key string, at time.Time) error
	MarkStale(ctx context.Context, key string, at time.Time) error
	MarkInvalid(ctx context.Context, key string) error
	DeleteEntry(ctx context.Context, key string) (bool, error)
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
	ExpiredKeys(ctx context.Context, asOf time.Time) ([]string, error)
	Stats(ctx context.Context) (*models.CacheStats, error)
	TypePerformance(ctx context.Context) ([]models.TypePerformance, error)
}

// AccessLogger is the append-only analytics port. Writes are best-effort:
// a failed append degrades observability, never correctness.
type AccessLogger interface {
	InsertAccessLog(ctx context.Context, entry *models.AccessLogEntry) error
}

// CachedData is a payload returned by Get together with its metadata and
// read-time staleness.
type CachedData struct {
	Payload []byte
	Entry   *models.CacheEntry

	// IsStale reports the entry was past its freshness window at read
	// time. The payload is still usable as a fallback.
	IsStale bool
}

// Engine coordinates the payload store and the metadata store. All
// methods are safe for concurrent use; the engine holds no mutable state
// of its own.
type Engine struct {
	kv   kvstore.Store
	meta MetadataStore
	logs AccessLogger

	defaultTTL   time.Duration
	staleGrace   time.Duration
	previewBytes int
	now          func() time.Time
}

// NewEngine builds an engine over the given stores.
func NewEngine(kv kvstore.Store, meta MetadataStore, logs AccessLogger, opts ...Option) *Engine {
	e := &Engine{
		kv:           kv,
		meta:         meta,
		logs:         logs,
		defaultTTL:   time.Hour,
		staleGrace:   24 * time.Hour,
		previewBytes: 200,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns the cached payload for key, or (nil, nil) when the key is
// absent or its payload has aged out of the store. Invalidated entries
// come back with IsStale set so they serve only as fallbacks. Errors are
// backend failures only; callers that can degrade should treat them as
// misses. Hit counters are bumped best-effort.
func (e *Engine) Get(ctx context.Context, key string) (*CachedData, error) {
	entry, err := e.meta.GetEntry(ctx, key)
	if errors.Is(err, metastore.ErrEntryNotFound) {
		metrics.CacheMisses.WithLabelValues("unknown").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.RecordStoreError("metadata", "get")
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}
	payload, err := e.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		// The payload aged out past the grace window while the metadata
		// row survived. Treat as a miss; cleanup reaps the row later.
		metrics.CacheMisses.WithLabelValues(entry.Type).Inc()
		return nil, nil
	}
	if err != nil {
		metrics.RecordStoreError("kv", "get")
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}

	now := e.now()
	if err := e.meta.RecordHit(ctx, key, now); err != nil {
		metrics.RecordStoreError("metadata", "record_hit")
		logging.Warn().Err(err).Str("key", key).Msg("Failed to record cache hit")
	}

	metrics.CacheHits.WithLabelValues(entry.Type).Inc()
	return &CachedData{
		Payload: payload,
		Entry:   entry,
		// An invalidated entry is never a fresh hit but stays
		// addressable as a fallback, same as a past-TTL one.
		IsStale: !entry.IsValid || entry.StaleAt(now),
	}, nil
}

// Set stores a payload and upserts its metadata row. The key-value TTL is
// the freshness window plus the stale-grace period, so an expired payload
// stays available for fallback serving until the grace elapses.
//
// A re-set of an existing key resets the freshness window and content
// fields but preserves the accumulated hit count.
func (e *Engine) Set(ctx context.Context, key string, data []byte, opts SetOptions) error {
	if key == "" {
		return errors.New("cache set: empty key")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	cacheType := opts.Type
	if cacheType == "" {
		cacheType = models.CacheTypeAPIResult
	}

	if err := e.kv.Put(ctx, key, data, ttl+e.staleGrace); err != nil {
		metrics.RecordStoreError("kv", "put")
		return fmt.Errorf("cache set %q: %w", key, err)
	}

	now := e.now()
	hash := sha256.Sum256(data)
	entry := &models.CacheEntry{
		Key:              key,
		Type:             cacheType,
		ContentHash:      hex.EncodeToString(hash[:]),
		ContentSizeBytes: int64(len(data)),
		ContentPreview:   e.preview(data),
		SourceType:       opts.SourceType,
		SourceIdentifier: opts.SourceID,
		TTLSeconds:       int64(ttl.Seconds()),
		CachedAt:         now,
		ExpiresAt:        now.Add(ttl),
		IsValid:          true,
	}
	if err := e.meta.UpsertEntry(ctx, entry); err != nil {
		// The payload is already stored; it expires naturally via the
		// store TTL if this row never lands.
		metrics.RecordStoreError("metadata", "upsert")
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete removes key from both stores and logs an invalidate access.
// Idempotent: deleting a missing key reports existed=false, not an error.
func (e *Engine) Delete(ctx context.Context, key string) (bool, error) {
	if err := e.kv.Delete(ctx, key); err != nil {
		metrics.RecordStoreError("kv", "delete")
		return false, fmt.Errorf("cache delete %q: %w", key, err)
	}
	existed, err := e.meta.DeleteEntry(ctx, key)
	if err != nil {
		metrics.RecordStoreError("metadata", "delete")
		return false, fmt.Errorf("cache delete %q: %w", key, err)
	}
	if existed {
		metrics.CacheInvalidations.Inc()
		e.LogAccess(ctx, &models.AccessLogEntry{
			Key:        key,
			AccessType: models.AccessInvalidate,
		})
	}
	return existed, nil
}

// Invalidate soft-deletes key: the metadata row is flagged invalid and
// reads treat it as a miss, but the payload and row survive for audit.
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	if err := e.meta.MarkInvalid(ctx, key); err != nil {
		metrics.RecordStoreError("metadata", "mark_invalid")
		return fmt.Errorf("cache invalidate %q: %w", key, err)
	}
	metrics.CacheInvalidations.Inc()
	e.LogAccess(ctx, &models.AccessLogEntry{
		Key:        key,
		AccessType: models.AccessInvalidate,
	})
	return nil
}

// MarkStale flips a single entry past its freshness window without
// touching the payload. The next Get returns it with IsStale set, which
// forces the orchestrator to attempt a refresh.
func (e *Engine) MarkStale(ctx context.Context, key string) error {
	if err := e.meta.MarkStale(ctx, key, e.now()); err != nil {
		metrics.RecordStoreError("metadata", "mark_stale")
		return fmt.Errorf("cache mark stale %q: %w", key, err)
	}
	return nil
}

// InvalidateByPattern deletes every key matching the glob pattern, where
// * matches any run of characters. Individual key failures are logged and
// skipped; the returned count is the number successfully removed.
func (e *Engine) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	if strings.TrimSpace(pattern) == "" {
		return 0, errors.New("cache invalidate: empty pattern")
	}

	keys, err := e.meta.KeysMatching(ctx, pattern)
	if err != nil {
		metrics.RecordStoreError("metadata", "keys_matching")
		return 0, fmt.Errorf("cache invalidate pattern %q: %w", pattern, err)
	}

	removed := 0
	for _, key := range keys {
		if _, err := e.Delete(ctx, key); err != nil {
			logging.Warn().Err(err).Str("key", key).Str("pattern", pattern).
				Msg("Failed to invalidate key, continuing")
			continue
		}
		removed++
	}

	logging.Info().Str("pattern", pattern).Int("matched", len(keys)).
		Int("removed", removed).Msg("Pattern invalidation complete")
	return removed, nil
}

// CleanupExpired removes every entry whose freshness window has elapsed
// at call time, payload and metadata both. Externally triggered; the
// engine runs no background sweeps of its own, so the scheduling cadence
// decides how long stale fallbacks stay servable.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := e.meta.ExpiredKeys(ctx, e.now())
	if err != nil {
		metrics.RecordStoreError("metadata", "expired_keys")
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if err := e.kv.Delete(ctx, key); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Failed to delete expired payload, continuing")
			continue
		}
		if _, err := e.meta.DeleteEntry(ctx, key); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Failed to delete expired metadata, continuing")
			continue
		}
		removed++
	}

	metrics.CacheCleanupRemoved.Add(float64(removed))
	logging.Info().Int("removed", removed).Msg("Expired entry cleanup complete")
	return removed, nil
}

// Stats returns aggregate cache health for the management API.
func (e *Engine) Stats(ctx context.Context) (*models.CacheStats, error) {
	stats, err := e.meta.Stats(ctx)
	if err != nil {
		metrics.RecordStoreError("metadata", "stats")
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// Performance returns the per-type rolling 24-hour breakdown.
func (e *Engine) Performance(ctx context.Context) ([]models.TypePerformance, error) {
	perf, err := e.meta.TypePerformance(ctx)
	if err != nil {
		metrics.RecordStoreError("metadata", "type_performance")
		return nil, fmt.Errorf("cache performance: %w", err)
	}
	return perf, nil
}

// LogAccess appends one record to the access log. Best-effort: failures
// are logged and swallowed so the analytics side channel can never break
// a request path. Missing ID and Timestamp fields are filled in.
func (e *Engine) LogAccess(ctx context.Context, entry *models.AccessLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.now()
	}
	if err := e.logs.InsertAccessLog(ctx, entry); err != nil {
		metrics.RecordStoreError("metadata", "access_log")
		logging.Warn().Err(err).Str("key", entry.Key).Msg("Failed to append access log")
	}
}

// preview returns the first previewBytes of data. The preview is a
// debugging aid and is stored as-is, valid UTF-8 or not.
func (e *Engine) preview(data []byte) string {
	if len(data) > e.previewBytes {
		data = data[:e.previewBytes]
	}
	return string(data)
}
