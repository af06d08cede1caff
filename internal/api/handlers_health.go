// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/voltmesh/chargeguard/internal/models"
)

// healthCheckTimeout bounds the store pings so a hung backend cannot
// stall the probe.
const healthCheckTimeout = 5 * time.Second

// Health handles GET /api/v1/health: full status with per-store
// connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := models.HealthStatus{
		Status:             "healthy",
		Version:            h.version,
		MetastoreConnected: h.analytics.Ping(ctx) == nil,
		KVStoreConnected:   h.kv.Ping(ctx) == nil,
		Uptime:             time.Since(h.startTime).Seconds(),
	}
	if !status.MetastoreConnected || !status.KVStoreConnected {
		status.Status = "degraded"
	}
	rw.Success(status)
}

// HealthLive handles GET /api/v1/health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready: both stores must answer
// before the instance accepts traffic.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.analytics.Ping(ctx); err != nil {
		rw.ServiceUnavailable("metadata store not ready")
		return
	}
	if err := h.kv.Ping(ctx); err != nil {
		rw.ServiceUnavailable("key-value store not ready")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}
