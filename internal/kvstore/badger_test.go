// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestBadger opens an in-memory Badger store and registers cleanup.
func newTestBadger(t *testing.T) *BadgerStore {
	t.Helper()

	s, err := NewBadgerStore("")
	if err != nil {
		t.Fatalf("NewBadgerStore failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func TestBadgerStorePutGetDelete(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	if err := s.Put(ctx, "api:vendor:station:7", []byte(`{"status":"Faulted"}`), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "api:vendor:station:7")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"status":"Faulted"}` {
		t.Errorf("Get = %q", got)
	}

	if err := s.Delete(ctx, "api:vendor:station:7"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "api:vendor:station:7"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}

	// Delete is idempotent.
	if err := s.Delete(ctx, "api:vendor:station:7"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestBadgerStoreMissingKey(t *testing.T) {
	s := newTestBadger(t)

	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing key = %v, want ErrNotFound", err)
	}
}

func TestBadgerStoreTTL(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	if err := s.Put(ctx, "short-lived", []byte("v"), 200*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := s.Get(ctx, "short-lived"); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if _, err := s.Get(ctx, "short-lived"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after TTL = %v, want ErrNotFound", err)
	}
}

func TestBadgerStorePing(t *testing.T) {
	s := newTestBadger(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on open store failed: %v", err)
	}
}
