// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package breaker implements the per-dependency circuit breaker registry.
// State lives in the metadata store, one row per service name, created
// lazily and never deleted. There is no background timer: the sole
// open-to-half-open path is the passive elapsed-time check performed by
// Allow on the next request after the cooldown.
package breaker
