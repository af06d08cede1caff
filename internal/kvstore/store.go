// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

// Package kvstore provides the durable, TTL-capable key-value store used
// for cached payloads. Three backends implement the same Store interface:
// BadgerDB (embedded, default), Redis (shared cache tier), and an
// in-memory map for tests and ephemeral dev runs.
//
// The cache engine treats the store as opaque bytes keyed by opaque
// strings; all semantics (freshness, staleness, metadata) live above it.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist or its TTL has
// elapsed. Callers must treat it as a normal miss, not a backend failure.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the payload store port. Implementations must support per-key
// TTL with server-side expiry; a ttl of zero means no expiry.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key with the given TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
