// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltmesh/chargeguard/internal/config"
	"github.com/voltmesh/chargeguard/internal/middleware"
)

// Router assembles the chi route tree for the management API.
type Router struct {
	handler *Handler
	cfg     *config.ServerConfig
}

// NewRouter creates a router over the given handler.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// chiAdapter lifts http.HandlerFunc middleware into chi's
// func(http.Handler) http.Handler form.
func chiAdapter(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chiAdapter(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	// Health probes get permissive rate limiting so monitoring can poll
	// frequently without tripping the API limit.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.rateLimit(), router.rateWindow()))
		r.Use(chiAdapter(middleware.PrometheusMetrics))
		r.Use(chiAdapter(middleware.Compression))

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", router.handler.CacheStats)
			r.Get("/performance", router.handler.CachePerformance)
			r.Delete("/{key}", router.handler.CacheDelete)
			r.Post("/invalidate", router.handler.CacheInvalidate)
			r.Post("/cleanup", router.handler.CacheCleanup)
		})

		r.Route("/breakers", func(r chi.Router) {
			r.Get("/", router.handler.BreakerList)
			r.Get("/{service}", router.handler.BreakerState)
			r.Post("/{service}/reset", router.handler.BreakerReset)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Post("/rollup", router.handler.AnalyticsRollup)
			r.Get("/daily", router.handler.AnalyticsDaily)
		})
	})

	// Prometheus scrape endpoint, outside the rate-limited API tree.
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (router *Router) rateLimit() int {
	if router.cfg.RateLimitReqs > 0 {
		return router.cfg.RateLimitReqs
	}
	return 100
}

func (router *Router) rateWindow() time.Duration {
	if router.cfg.RateLimitWindow > 0 {
		return router.cfg.RateLimitWindow
	}
	return time.Minute
}
