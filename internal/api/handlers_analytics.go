// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"net/http"
	"strconv"
	"time"
)

// rollupRequest is the body of POST /analytics/rollup. Day defaults to
// the current UTC day when omitted.
type rollupRequest struct {
	Day string `json:"day" validate:"omitempty,datetime=2006-01-02"`
}

// AnalyticsRollup handles POST /api/v1/analytics/rollup: the externally
// scheduled daily aggregation of access logs into cache_stats_daily.
func (h *Handler) AnalyticsRollup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	day := time.Now().UTC()
	if r.ContentLength > 0 {
		var req rollupRequest
		if !h.decodeAndValidate(rw, r, &req) {
			return
		}
		if req.Day != "" {
			parsed, err := time.Parse("2006-01-02", req.Day)
			if err != nil {
				rw.BadRequest("invalid day, want YYYY-MM-DD")
				return
			}
			day = parsed
		}
	}

	written, err := h.analytics.RollupDaily(r.Context(), day)
	if err != nil {
		rw.InternalError(err, "daily rollup failed")
		return
	}
	rw.Success(map[string]interface{}{
		"day":  day.Format("2006-01-02"),
		"rows": written,
	})
}

// AnalyticsDaily handles GET /api/v1/analytics/daily?days=N, returning
// rollup rows for the trailing N days (default 7, max 90).
func (h *Handler) AnalyticsDaily(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			rw.BadRequest("days must be an integer between 1 and 90")
			return
		}
		days = parsed
	}

	stats, err := h.analytics.DailyStats(r.Context(), days)
	if err != nil {
		rw.InternalError(err, "failed to load daily statistics")
		return
	}
	rw.Success(map[string]interface{}{"days": days, "stats": stats})
}
