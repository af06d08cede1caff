// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package models defines the shared data structures for ChargeGuard:
// cache entry metadata, circuit breaker state, access log entries, and
// the standardized API response envelope used by the management API.
//
// These types are deliberately dependency-free so every other package can
// import them without cycles. Persistence lives in internal/metastore,
// behavior in internal/cache, internal/breaker, and internal/resilience.
package models
