// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/voltmesh/chargeguard/internal/logging"
)

// invalidateRequest is the body of POST /cache/invalidate.
type invalidateRequest struct {
	Pattern string `json:"pattern" validate:"required,min=1,max=512"`
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		rw.InternalError(err, "failed to compute cache statistics")
		return
	}
	rw.Success(stats)
}

// CachePerformance handles GET /api/v1/cache/performance.
func (h *Handler) CachePerformance(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	perf, err := h.engine.Performance(r.Context())
	if err != nil {
		rw.InternalError(err, "failed to compute cache performance")
		return
	}
	rw.Success(map[string]interface{}{"types": perf})
}

// CacheDelete handles DELETE /api/v1/cache/{key}. The key is URL-encoded
// in the path. With ?soft=true the entry is flagged invalid instead of
// removed, keeping the payload addressable as a fallback.
func (h *Handler) CacheDelete(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		rw.BadRequest("invalid cache key")
		return
	}

	if r.URL.Query().Get("soft") == "true" {
		if err := h.engine.Invalidate(r.Context(), key); err != nil {
			rw.InternalError(err, "failed to invalidate cache entry")
			return
		}
		rw.Success(map[string]interface{}{"key": key, "soft": true})
		return
	}

	existed, err := h.engine.Delete(r.Context(), key)
	if err != nil {
		rw.InternalError(err, "failed to delete cache entry")
		return
	}
	if !existed {
		rw.NotFound("cache key not found")
		return
	}
	rw.Success(map[string]interface{}{"key": key, "deleted": true})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req invalidateRequest
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	removed, err := h.engine.InvalidateByPattern(r.Context(), req.Pattern)
	if err != nil {
		rw.InternalError(err, "failed to invalidate by pattern")
		return
	}

	logging.Ctx(r.Context()).Info().Str("pattern", req.Pattern).Int("removed", removed).
		Msg("Cache invalidation requested")
	rw.Success(map[string]interface{}{"pattern": req.Pattern, "removed": removed})
}

// CacheCleanup handles POST /api/v1/cache/cleanup: the externally
// scheduled expired-entry sweep.
func (h *Handler) CacheCleanup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	removed, err := h.engine.CleanupExpired(r.Context())
	if err != nil {
		rw.InternalError(err, "cleanup sweep failed")
		return
	}
	rw.Success(map[string]interface{}{"removed": removed})
}
