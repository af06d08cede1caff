// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package main is the entry point for the ChargeGuard server.
//
// ChargeGuard is the resilience layer that sits between the VoltMesh
// support platform and its slow or flaky upstream dependencies: charging
// network APIs, the vehicle telemetry service, and the knowledge base.
// It combines a dual-store response cache with per-service circuit
// breakers so the support assistant keeps answering even while an
// upstream is down.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables over an optional YAML file
//     over built-in defaults (Koanf v2)
//  2. Metadata store: DuckDB tables for cache entries, breaker state,
//     access logs, and daily rollups
//  3. Key-value store: BadgerDB (embedded, default), Redis, or an
//     in-memory map for payload bytes
//  4. Cache engine, breaker registry, and the resilient-fetch
//     orchestrator wired over both stores
//  5. HTTP server: management REST API plus Prometheus /metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (e.g. HTTP_PORT=7313)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Common settings:
//   - KV_BACKEND: badger (default), redis, or memory
//   - REDIS_URL: redis:// URL for the redis backend
//   - DUCKDB_PATH: DuckDB file, or :memory: for ephemeral runs
//   - CACHE_DEFAULT_TTL / CACHE_STALE_GRACE
//   - BREAKER_FAILURE_THRESHOLD / BREAKER_SUCCESS_THRESHOLD / BREAKER_TIMEOUT
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Stops the Badger GC ticker, then closes both stores
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voltmesh/chargeguard/internal/api"
	"github.com/voltmesh/chargeguard/internal/breaker"
	"github.com/voltmesh/chargeguard/internal/cache"
	"github.com/voltmesh/chargeguard/internal/config"
	"github.com/voltmesh/chargeguard/internal/kvstore"
	"github.com/voltmesh/chargeguard/internal/logging"
	"github.com/voltmesh/chargeguard/internal/metastore"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("kv_backend", cfg.KVStore.Backend).
		Str("db_path", cfg.Database.Path).
		Msg("Starting ChargeGuard")

	db, err := metastore.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize metadata store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing metadata store")
		}
	}()
	logging.Info().Msg("Metadata store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := kvstore.Open(ctx, &cfg.KVStore)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open key-value store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing key-value store")
		}
	}()

	// Badger needs periodic value-log garbage collection. The ticker is
	// scoped to the server lifetime and stops with the shutdown context.
	if bs, ok := kv.(*kvstore.BadgerStore); ok {
		interval := cfg.KVStore.GCInterval
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		go runBadgerGC(ctx, bs, interval)
	}

	engine := cache.NewEngine(kv, db, db,
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithStaleGrace(cfg.Cache.StaleGrace),
		cache.WithPreviewBytes(cfg.Cache.PreviewBytes),
	)
	registry := breaker.NewRegistry(db, cfg.Breaker)

	handler := api.NewHandler(engine, registry, db, kv, version)
	router := api.NewRouter(handler, &cfg.Server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("HTTP server error")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed, forcing close")
		_ = srv.Close()
	}

	logging.Info().Msg("Application stopped gracefully")
}

// runBadgerGC runs Badger value-log garbage collection on a fixed
// interval until ctx is canceled.
func runBadgerGC(ctx context.Context, bs *kvstore.BadgerStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", interval).Msg("Badger GC ticker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bs.RunGC()
		}
	}
}
