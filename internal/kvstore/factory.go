// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package kvstore

import (
	"context"
	"fmt"

	"github.com/voltmesh/chargeguard/internal/config"
)

// Backend identifiers accepted by Open.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Open creates the configured Store backend.
func Open(ctx context.Context, cfg *config.KVStoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendBadger:
		return NewBadgerStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown kvstore backend %q", cfg.Backend)
	}
}
