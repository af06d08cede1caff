// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package models

import "time"

// Cache entry types partition keys for per-type analytics. Callers are free
// to introduce new types; these are the ones the support platform uses today.
const (
	CacheTypeAPIResult   = "api_result"  // vendor charging API responses
	CacheTypeKBArticle   = "kb_article"  // knowledge-base lookups
	CacheTypeTranslation = "translation" // translation/LLM call results
)

// CacheEntry is the relational metadata record for a cached payload.
// The payload itself lives in the key-value store; this row exists so
// analytical questions (hit rate by type, storage footprint, staleness
// counts) can be answered without scanning payloads.
type CacheEntry struct {
	Key              string     `json:"key"`
	Type             string     `json:"type"`
	ContentHash      string     `json:"content_hash"`
	ContentSizeBytes int64      `json:"content_size_bytes"`
	ContentPreview   string     `json:"content_preview"`
	SourceType       string     `json:"source_type,omitempty"`
	SourceIdentifier string     `json:"source_identifier,omitempty"`
	TTLSeconds       int64      `json:"ttl_seconds"`
	CachedAt         time.Time  `json:"cached_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	HitCount         int64      `json:"hit_count"`
	LastHitAt        *time.Time `json:"last_hit_at,omitempty"`
	IsValid          bool       `json:"is_valid"`
}

// StaleAt reports whether the entry is past its freshness window at the
// given instant. Staleness is always derived from timestamps at read time,
// never stored as an enum.
func (e *CacheEntry) StaleAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// AccessType values for AccessLogEntry.
const (
	AccessHit        = "hit"
	AccessMiss       = "miss"
	AccessInvalidate = "invalidate"
)

// AccessLogEntry is an append-only observability record. It is written on
// every cache access and read back only by analytics rollups, never by
// cache or breaker decision logic.
type AccessLogEntry struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	Type           string    `json:"type,omitempty"`
	AccessType     string    `json:"access_type"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	IsFallback     bool      `json:"is_fallback"`
	Timestamp      time.Time `json:"timestamp"`
}

// CacheStats aggregates cache engine health for the management API.
type CacheStats struct {
	TotalEntries      int64   `json:"total_entries"`
	ValidEntries      int64   `json:"valid_entries"`
	ExpiredEntries    int64   `json:"expired_entries"`
	TotalHits         int64   `json:"total_hits"`
	AvgHitsPerEntry   float64 `json:"avg_hits_per_entry"`
	ApproxSizeBytes   int64   `json:"approx_size_bytes"`
	HitRate24h        float64 `json:"hit_rate_24h"`
	FallbackServes24h int64   `json:"fallback_serves_24h"`
}

// TypePerformance is one row of the per-type cache performance breakdown:
// rolling 24-hour hit/miss behavior plus latency aggregates per cache type.
type TypePerformance struct {
	Type          string  `json:"type"`
	Entries       int64   `json:"entries"`
	Hits24h       int64   `json:"hits_24h"`
	Misses24h     int64   `json:"misses_24h"`
	Fallbacks24h  int64   `json:"fallbacks_24h"`
	HitRate24h    float64 `json:"hit_rate_24h"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	P95LatencyMS  float64 `json:"p95_latency_ms"`
}

// DailyCacheStats is one upserted row of the cache_stats_daily rollup table.
type DailyCacheStats struct {
	Day           time.Time `json:"day"`
	Type          string    `json:"type"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Invalidations int64     `json:"invalidations"`
	Fallbacks     int64     `json:"fallbacks"`
	AvgLatencyMS  float64   `json:"avg_latency_ms"`
}
