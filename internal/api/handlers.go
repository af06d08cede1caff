// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/voltmesh/chargeguard/internal/breaker"
	"github.com/voltmesh/chargeguard/internal/cache"
	"github.com/voltmesh/chargeguard/internal/kvstore"
	"github.com/voltmesh/chargeguard/internal/models"
)

// AnalyticsStore is the rollup and health-check surface of the metadata
// store the handlers need. *metastore.DB implements it.
type AnalyticsStore interface {
	RollupDaily(ctx context.Context, day time.Time) (int64, error)
	DailyStats(ctx context.Context, days int) ([]models.DailyCacheStats, error)
	Ping(ctx context.Context) error
}

// Handler holds the dependencies for all management API endpoints.
type Handler struct {
	engine    *cache.Engine
	registry  *breaker.Registry
	analytics AnalyticsStore
	kv        kvstore.Store
	validate  *validator.Validate

	version   string
	startTime time.Time
}

// NewHandler creates a handler over the subsystem components.
func NewHandler(engine *cache.Engine, registry *breaker.Registry, analytics AnalyticsStore, kv kvstore.Store, version string) *Handler {
	return &Handler{
		engine:    engine,
		registry:  registry,
		analytics: analytics,
		kv:        kv,
		validate:  validator.New(),
		version:   version,
		startTime: time.Now(),
	}
}

// decodeAndValidate decodes a JSON request body into dst and runs
// struct validation. Returns false after writing the error response.
func (h *Handler) decodeAndValidate(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rw.BadRequest("invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		details := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		rw.ValidationFailed("request validation failed", details)
		return false
	}
	return true
}
