// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package cache

import "time"

// SetOptions carries per-entry overrides for Engine.Set. The zero value
// uses the engine defaults: default TTL, cache type "api_result", no
// source attribution.
type SetOptions struct {
	// TTL is the freshness window. Zero means the engine default.
	TTL time.Duration

	// Type partitions the key for per-type analytics. Empty means
	// models.CacheTypeAPIResult.
	Type string

	// SourceType and SourceID attribute the payload to its upstream
	// origin, e.g. ("charging_api", "evgo").
	SourceType string
	SourceID   string
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDefaultTTL overrides the freshness window applied when SetOptions
// carries no TTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.defaultTTL = ttl
		}
	}
}

// WithStaleGrace overrides how long payloads outlive their freshness
// window in the key-value store for fallback serving.
func WithStaleGrace(grace time.Duration) Option {
	return func(e *Engine) {
		if grace > 0 {
			e.staleGrace = grace
		}
	}
}

// WithPreviewBytes overrides how much of each payload is kept as the
// metadata content preview.
func WithPreviewBytes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.previewBytes = n
		}
	}
}

// WithClock replaces the engine clock. Test use only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
