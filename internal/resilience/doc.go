// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package resilience combines the cache engine and the circuit breaker
// registry into the getOrSet entry point: serve fresh cache, gate the
// dependency behind its breaker, fall back to stale cache on denial or
// failure, and record every outcome on both sides.
//
// The guarantee callers rely on: if any prior fetch for a key ever
// succeeded, GetOrSet returns some value. It degrades to an error only
// when the dependency is unavailable AND no cached value, stale or
// fresh, exists for the key.
package resilience
