// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package api provides the management HTTP surface: cache statistics and
// invalidation, circuit breaker dashboard and reset, analytics rollup
// triggers, health probes, and Prometheus metrics. Routing uses chi with
// the cors, httprate, and compression middleware stack.
package api
