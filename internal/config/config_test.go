// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Server.Port != 7313 {
		t.Errorf("default port = %d, want 7313", cfg.Server.Port)
	}
	if cfg.KVStore.Backend != "badger" {
		t.Errorf("default kv backend = %q, want badger", cfg.KVStore.Backend)
	}
	if cfg.Cache.DefaultTTL != time.Hour {
		t.Errorf("default cache TTL = %v, want 1h", cfg.Cache.DefaultTTL)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("default failure threshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9101")
	t.Setenv("KV_BACKEND", "memory")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9101 {
		t.Errorf("port = %d, want 9101", cfg.Server.Port)
	}
	if cfg.KVStore.Backend != "memory" {
		t.Errorf("kv backend = %q, want memory", cfg.KVStore.Backend)
	}
	if cfg.Cache.DefaultTTL != 90*time.Second {
		t.Errorf("cache TTL = %v, want 90s", cfg.Cache.DefaultTTL)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("failure threshold = %d, want 3", cfg.Breaker.FailureThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestEnvUnknownIgnored(t *testing.T) {
	t.Setenv("SOME_UNRELATED_VAR", "value")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() should ignore unrelated env vars, got: %v", err)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://ops.example.com, https://dash.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("cors origins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[0] != "https://ops.example.com" {
		t.Errorf("first origin = %q", cfg.Server.CORSOrigins[0])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: ErrInvalidPort,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.KVStore.Backend = "etcd" },
			wantErr: ErrInvalidKVBackend,
		},
		{
			name: "redis without url",
			mutate: func(c *Config) {
				c.KVStore.Backend = "redis"
				c.KVStore.RedisURL = ""
			},
			wantErr: ErrRedisURLRequired,
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.KVStore.Backend = "badger"
				c.KVStore.Path = ""
			},
			wantErr: ErrBadgerPathMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
