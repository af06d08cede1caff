// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package cache implements the cache engine: payload bytes in the
// key-value store, one metadata row per key in the metadata store, and
// an append-only access log as a one-way analytics side channel.
//
// Staleness is derived from timestamps at read time, never stored.
// Payloads are retained in the key-value store past their freshness
// window (TTL plus a grace period) so a stale copy remains available to
// serve as a fallback when the upstream dependency is down.
package cache
