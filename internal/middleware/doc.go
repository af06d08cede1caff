// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package middleware provides HTTP middleware for the management API:
// request ID propagation, Prometheus instrumentation, and response
// compression. All middleware uses the http.HandlerFunc form and is
// adapted into chi's func(http.Handler) http.Handler at the router.
package middleware
