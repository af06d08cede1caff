// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/voltmesh/chargeguard/internal/cache"
	"github.com/voltmesh/chargeguard/internal/logging"
	"github.com/voltmesh/chargeguard/internal/metrics"
	"github.com/voltmesh/chargeguard/internal/models"
)

// FetchFunc produces the value to cache. It runs only when the cache
// cannot satisfy the request and the circuit allows it. The returned
// value must be JSON-marshalable.
type FetchFunc func(ctx context.Context) (any, error)

// Options carries per-call settings for GetOrSet.
type Options struct {
	// TTL is the freshness window for a newly fetched value. Zero means
	// the engine default.
	TTL time.Duration

	// Type is the cache type dimension, e.g. models.CacheTypeAPIResult.
	Type string

	// Service names the dependency behind fetch for circuit gating.
	// Empty disables the breaker for this call.
	Service string

	// SourceType and SourceID attribute the cached value to its origin.
	SourceType string
	SourceID   string
}

// UnavailableError reports that the circuit denied the request and no
// cached value, stale or fresh, existed to fall back on.
type UnavailableError struct {
	Service string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("dependency %q unavailable and no cached fallback", e.Service)
}

// Gate is the circuit breaker port the orchestrator needs.
// *breaker.Registry implements it.
type Gate interface {
	Allow(ctx context.Context, service string) (bool, error)
	RecordSuccess(ctx context.Context, service string) error
	RecordFailure(ctx context.Context, service, errMsg string) error
}

// Orchestrator is the resilient-fetch entry point over a cache engine
// and a breaker registry. Stateless and safe for concurrent use.
type Orchestrator struct {
	engine *cache.Engine
	gate   Gate
	now    func() time.Time
}

// New builds an orchestrator.
func New(engine *cache.Engine, gate Gate) *Orchestrator {
	return &Orchestrator{
		engine: engine,
		gate:   gate,
		now:    time.Now,
	}
}

// SetClock replaces the orchestrator clock. Test use only.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// GetOrSet returns the cached value for key, fetching and caching it
// when the cache cannot serve it fresh.
//
//  1. Fresh cache hit: returned immediately, the dependency is never
//     consulted.
//  2. Circuit denied: a cached value (even stale) is served as a
//     fallback; with no cached value the call fails with
//     *UnavailableError.
//  3. Fetch: on success the result is cached best-effort and returned;
//     on failure a cached value (even stale) is served as a fallback,
//     otherwise the fetch error propagates.
//
// Cache backend read errors fail open: the call proceeds as a miss
// rather than failing, so a cache outage degrades to direct fetches.
func (o *Orchestrator) GetOrSet(ctx context.Context, key string, fetch FetchFunc, opts Options) (json.RawMessage, error) {
	start := o.now()

	cached, err := o.engine.Get(ctx, key)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Cache read failed, proceeding as miss")
		cached = nil
	}
	if cached != nil && !cached.IsStale {
		o.logAccess(ctx, key, opts.Type, models.AccessHit, start, false)
		return json.RawMessage(cached.Payload), nil
	}

	if opts.Service != "" {
		allowed, err := o.gate.Allow(ctx, opts.Service)
		if err != nil {
			// Breaker state unavailable: fail open and let the fetch
			// itself decide the outcome.
			logging.Warn().Err(err).Str("service", opts.Service).
				Msg("Breaker check failed, allowing request")
			allowed = true
		}
		if !allowed {
			if cached != nil {
				return o.serveFallback(ctx, key, opts, cached, start, "circuit_open"), nil
			}
			return nil, &UnavailableError{Service: opts.Service}
		}
	}

	fetchStart := o.now()
	value, fetchErr := fetch(ctx)
	metrics.RecordFetch(opts.Service, o.now().Sub(fetchStart), fetchErr)

	if fetchErr != nil {
		o.recordOutcome(ctx, opts.Service, fetchErr)
		if cached != nil {
			return o.serveFallback(ctx, key, opts, cached, start, "fetch_failed"), nil
		}
		return nil, fmt.Errorf("fetch %q: %w", key, fetchErr)
	}
	o.recordOutcome(ctx, opts.Service, nil)

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal fetched value for %q: %w", key, err)
	}

	// Best-effort write: a failed cache store must not fail a request
	// that already holds a fresh value.
	setOpts := cache.SetOptions{
		TTL:        opts.TTL,
		Type:       opts.Type,
		SourceType: opts.SourceType,
		SourceID:   opts.SourceID,
	}
	if err := o.engine.Set(ctx, key, payload, setOpts); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Cache write failed after fetch")
	}

	o.logAccess(ctx, key, opts.Type, models.AccessMiss, start, false)
	return payload, nil
}

// serveFallback returns a stale cached payload, logging it as a fallback
// hit and counting it under the given reason.
func (o *Orchestrator) serveFallback(ctx context.Context, key string, opts Options, cached *cache.CachedData, start time.Time, reason string) json.RawMessage {
	cacheType := opts.Type
	if cacheType == "" {
		cacheType = cached.Entry.Type
	}
	metrics.CacheFallbackServes.WithLabelValues(cacheType, reason).Inc()
	logging.Info().Str("key", key).Str("reason", reason).Msg("Serving stale cache fallback")
	o.logAccess(ctx, key, cacheType, models.AccessHit, start, true)
	return json.RawMessage(cached.Payload)
}

// recordOutcome reports a fetch result to the breaker. Best-effort: a
// failed record is logged and never alters the caller-visible outcome.
func (o *Orchestrator) recordOutcome(ctx context.Context, service string, fetchErr error) {
	if service == "" {
		return
	}
	var err error
	if fetchErr != nil {
		err = o.gate.RecordFailure(ctx, service, fetchErr.Error())
	} else {
		err = o.gate.RecordSuccess(ctx, service)
	}
	if err != nil {
		logging.Warn().Err(err).Str("service", service).Msg("Failed to record breaker outcome")
	}
}

func (o *Orchestrator) logAccess(ctx context.Context, key, cacheType, accessType string, start time.Time, fallback bool) {
	o.engine.LogAccess(ctx, &models.AccessLogEntry{
		Key:            key,
		Type:           cacheType,
		AccessType:     accessType,
		ResponseTimeMS: o.now().Sub(start).Milliseconds(),
		IsFallback:     fallback,
	})
}

// GetOrSetAs fetches a typed value through the orchestrator, decoding
// the cached JSON into T.
func GetOrSetAs[T any](ctx context.Context, o *Orchestrator, key string, fetch func(ctx context.Context) (T, error), opts Options) (T, error) {
	raw, err := o.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)

	var out T
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cached value for %q: %w", key, err)
	}
	return out, nil
}
