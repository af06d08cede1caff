// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package metrics defines the Prometheus collectors for ChargeGuard and
// small helpers for recording them. Collectors are registered with the
// default registry via promauto at package load; the management API serves
// them at /metrics.
package metrics
