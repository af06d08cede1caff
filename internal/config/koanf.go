// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chargeguard/config.yaml",
	"/etc/chargeguard/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            7313,
			Timeout:         30 * time.Second,
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "/data/chargeguard.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		KVStore: KVStoreConfig{
			Backend:    "badger",
			Path:       "/data/kv",
			RedisURL:   "",
			GCInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			DefaultTTL:   time.Hour,
			StaleGrace:   24 * time.Hour,
			PreviewBytes: 200,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources (highest priority wins):
//  1. Environment variables
//  2. Optional YAML config file
//  3. Built-in defaults
//
// Environment variable names map to config paths by lowercasing and
// splitting on the first underscore-delimited section name:
// CACHE_DEFAULT_TTL -> cache.default_ttl, KV_BACKEND -> kvstore.backend.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches the env override and default paths; returns the
// first existing file, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for
// known slice fields. YAML-sourced values are already slices and skipped.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings translates environment variable names to config paths.
// Only variables listed here are honored; everything else is ignored so
// unrelated environment noise cannot perturb the configuration.
var envMappings = map[string]string{
	"HTTP_HOST":         "server.host",
	"HTTP_PORT":         "server.port",
	"HTTP_TIMEOUT":      "server.timeout",
	"RATE_LIMIT_REQS":   "server.rate_limit_reqs",
	"RATE_LIMIT_WINDOW": "server.rate_limit_window",
	"CORS_ORIGINS":      "server.cors_origins",

	"DUCKDB_PATH":       "database.path",
	"DUCKDB_MAX_MEMORY": "database.max_memory",
	"DUCKDB_THREADS":    "database.threads",

	"KV_BACKEND":     "kvstore.backend",
	"KV_PATH":        "kvstore.path",
	"REDIS_URL":      "kvstore.redis_url",
	"KV_GC_INTERVAL": "kvstore.gc_interval",

	"CACHE_DEFAULT_TTL":   "cache.default_ttl",
	"CACHE_STALE_GRACE":   "cache.stale_grace",
	"CACHE_PREVIEW_BYTES": "cache.preview_bytes",

	"BREAKER_FAILURE_THRESHOLD": "breaker.failure_threshold",
	"BREAKER_SUCCESS_THRESHOLD": "breaker.success_threshold",
	"BREAKER_TIMEOUT":           "breaker.timeout",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
	"LOG_CALLER": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// empty string to skip it.
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToUpper(key)]; ok {
		return path
	}
	return ""
}
