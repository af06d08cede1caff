// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voltmesh/chargeguard/internal/logging"
	"github.com/voltmesh/chargeguard/internal/models"
)

// BreakerList handles GET /api/v1/breakers: one dashboard row per known
// service with lifetime counters and trailing-window rates.
func (h *Handler) BreakerList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rows, err := h.registry.List(r.Context())
	if err != nil {
		rw.InternalError(err, "failed to list circuit breakers")
		return
	}
	if rows == nil {
		rows = []models.BreakerDashboardRow{}
	}
	rw.Success(map[string]interface{}{"breakers": rows})
}

// BreakerState handles GET /api/v1/breakers/{service}. A never-seen
// service gets a closed row created lazily, same as the gating path.
func (h *Handler) BreakerState(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	service := chi.URLParam(r, "service")
	if service == "" {
		rw.BadRequest("missing service name")
		return
	}

	state, err := h.registry.State(r.Context(), service)
	if err != nil {
		rw.InternalError(err, "failed to load circuit breaker state")
		return
	}
	rw.Success(state)
}

// BreakerReset handles POST /api/v1/breakers/{service}/reset: operator
// override forcing the breaker back to closed.
func (h *Handler) BreakerReset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	service := chi.URLParam(r, "service")
	if service == "" {
		rw.BadRequest("missing service name")
		return
	}

	if err := h.registry.Reset(r.Context(), service); err != nil {
		rw.InternalError(err, "failed to reset circuit breaker")
		return
	}

	logging.Ctx(r.Context()).Info().Str("service", service).Msg("Breaker reset via API")
	rw.Success(map[string]interface{}{"service": service, "state": models.BreakerClosed})
}
