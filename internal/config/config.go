// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package config loads and validates ChargeGuard configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML
// config file, and environment variable overrides (highest priority).
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	KVStore  KVStoreConfig  `koanf:"kvstore"`
	Cache    CacheConfig    `koanf:"cache"`
	Breaker  BreakerConfig  `koanf:"breaker"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings for the management API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// DatabaseConfig holds metadata store (DuckDB) settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:" for ephemeral runs.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// KVStoreConfig selects and configures the payload store backend.
type KVStoreConfig struct {
	// Backend is one of "badger" (embedded, default), "redis" (shared
	// cache tier), or "memory" (tests and ephemeral dev runs).
	Backend string `koanf:"backend"`

	// Path is the BadgerDB directory (badger backend only).
	Path string `koanf:"path"`

	// RedisURL is a redis:// connection URL (redis backend only).
	RedisURL string `koanf:"redis_url"`

	// GCInterval controls how often Badger value-log garbage collection
	// runs. It belongs to the store adapter, not the cache engine, and
	// only runs when this process owns the embedded store.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// CacheConfig holds cache engine settings.
type CacheConfig struct {
	// DefaultTTL applies when a Set carries no explicit TTL.
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// StaleGrace is how long past expiry a payload is retained in the
	// key-value store so it can be served as a fallback. Payloads are
	// written with TTL = freshness TTL + StaleGrace.
	StaleGrace time.Duration `koanf:"stale_grace"`

	// PreviewBytes is the maximum content preview length stored in
	// entry metadata.
	PreviewBytes int `koanf:"preview_bytes"`
}

// BreakerConfig holds circuit breaker registry defaults. Per-service rows
// are created with these values and may be tuned individually afterwards.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	SuccessThreshold int           `koanf:"success_threshold"`
	Timeout          time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
