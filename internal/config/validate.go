// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package config

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrInvalidPort       = errors.New("server port must be between 1 and 65535")
	ErrInvalidKVBackend  = errors.New(`kvstore backend must be "badger", "redis", or "memory"`)
	ErrRedisURLRequired  = errors.New("redis backend requires kvstore.redis_url")
	ErrBadgerPathMissing = errors.New("badger backend requires kvstore.path")
)

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.KVStore.Backend {
	case "badger":
		if c.KVStore.Path == "" {
			return ErrBadgerPathMissing
		}
	case "redis":
		if c.KVStore.RedisURL == "" {
			return ErrRedisURLRequired
		}
	case "memory":
		// No settings required.
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidKVBackend, c.KVStore.Backend)
	}

	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Cache.DefaultTTL <= 0 {
		return errors.New("cache.default_ttl must be positive")
	}
	if c.Cache.StaleGrace < 0 {
		return errors.New("cache.stale_grace must not be negative")
	}
	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.SuccessThreshold < 1 {
		return errors.New("breaker.success_threshold must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return errors.New("breaker.timeout must be positive")
	}

	return nil
}
