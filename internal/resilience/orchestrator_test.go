// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voltmesh/chargeguard/internal/cache"
	"github.com/voltmesh/chargeguard/internal/kvstore"
	"github.com/voltmesh/chargeguard/internal/metastore"
	"github.com/voltmesh/chargeguard/internal/models"
)

// memMeta is an in-memory metadata store and access logger double.
type memMeta struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	logs    []*models.AccessLogEntry

	// failReads makes GetEntry fail, simulating a metadata outage.
	failReads bool
}

func newMemMeta() *memMeta {
	return &memMeta{entries: make(map[string]*models.CacheEntry)}
}

func (m *memMeta) UpsertEntry(_ context.Context, e *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.Key] = &cp
	return nil
}

func (m *memMeta) GetEntry(_ context.Context, key string) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errors.New("simulated metadata outage")
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, metastore.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memMeta) RecordHit(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.HitCount++
		e.LastHitAt = &at
	}
	return nil
}

func (m *memMeta) MarkStale(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.ExpiresAt.After(at) {
		e.ExpiresAt = at
	}
	return nil
}

func (m *memMeta) MarkInvalid(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.IsValid = false
	}
	return nil
}

func (m *memMeta) DeleteEntry(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

func (m *memMeta) KeysMatching(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (m *memMeta) ExpiredKeys(_ context.Context, _ time.Time) ([]string, error) { return nil, nil }

func (m *memMeta) Stats(_ context.Context) (*models.CacheStats, error) {
	return &models.CacheStats{}, nil
}

func (m *memMeta) TypePerformance(_ context.Context) ([]models.TypePerformance, error) {
	return nil, nil
}

func (m *memMeta) InsertAccessLog(_ context.Context, entry *models.AccessLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *memMeta) accessLogs() []*models.AccessLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AccessLogEntry(nil), m.logs...)
}

// fakeGate is a scripted circuit breaker double.
type fakeGate struct {
	mu        sync.Mutex
	allow     bool
	allowErr  error
	successes []string
	failures  []string
}

func (g *fakeGate) Allow(_ context.Context, _ string) (bool, error) {
	return g.allow, g.allowErr
}

func (g *fakeGate) RecordSuccess(_ context.Context, service string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes = append(g.successes, service)
	return nil
}

func (g *fakeGate) RecordFailure(_ context.Context, service, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, service)
	return nil
}

type fixture struct {
	orch *Orchestrator
	meta *memMeta
	gate *fakeGate
	now  *time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	kv := kvstore.NewMemoryStore()
	kv.SetClock(clock)
	meta := newMemMeta()
	eng := cache.NewEngine(kv, meta, meta, cache.WithClock(clock))

	gate := &fakeGate{allow: true}
	orch := New(eng, gate)
	orch.SetClock(clock)

	return &fixture{orch: orch, meta: meta, gate: gate, now: &now}
}

// countingFetch returns a FetchFunc that counts invocations and returns
// the given value or error.
func countingFetch(value any, err error, calls *int) FetchFunc {
	return func(_ context.Context) (any, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}

func TestMissFetchesAndCaches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	calls := 0
	fetch := countingFetch(map[string]string{"status": "available"}, nil, &calls)
	opts := Options{Service: "charging_api", Type: models.CacheTypeAPIResult}

	raw, err := f.orch.GetOrSet(ctx, "charger:evgo:42", fetch, opts)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 on miss", calls)
	}
	if string(raw) != `{"status":"available"}` {
		t.Errorf("raw = %s, want fetched value", raw)
	}
	if got := f.gate.successes; len(got) != 1 || got[0] != "charging_api" {
		t.Errorf("breaker successes = %v, want one for charging_api", got)
	}

	// Second call is a fresh hit: the dependency is never consulted.
	if _, err := f.orch.GetOrSet(ctx, "charger:evgo:42", fetch, opts); err != nil {
		t.Fatalf("second GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d after fresh hit, want still 1", calls)
	}

	logs := f.meta.accessLogs()
	if len(logs) != 2 {
		t.Fatalf("access logs = %d, want miss then hit", len(logs))
	}
	if logs[0].AccessType != models.AccessMiss || logs[1].AccessType != models.AccessHit {
		t.Errorf("access types = %q,%q, want miss,hit", logs[0].AccessType, logs[1].AccessType)
	}
}

func TestOpenCircuitServesStaleFallback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	calls := 0
	opts := Options{Service: "charging_api", TTL: time.Minute}
	if _, err := f.orch.GetOrSet(ctx, "k", countingFetch("v1", nil, &calls), opts); err != nil {
		t.Fatalf("priming GetOrSet failed: %v", err)
	}

	*f.now = f.now.Add(2 * time.Minute) // entry now stale
	f.gate.allow = false

	raw, err := f.orch.GetOrSet(ctx, "k", countingFetch("v2", nil, &calls), opts)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1: open circuit must not fetch", calls)
	}
	if string(raw) != `"v1"` {
		t.Errorf("raw = %s, want stale v1 fallback", raw)
	}

	logs := f.meta.accessLogs()
	last := logs[len(logs)-1]
	if last.AccessType != models.AccessHit || !last.IsFallback {
		t.Errorf("last access = %q fallback=%v, want fallback hit", last.AccessType, last.IsFallback)
	}
}

func TestOpenCircuitNoCacheIsUnavailable(t *testing.T) {
	f := setup(t)
	f.gate.allow = false

	calls := 0
	_, err := f.orch.GetOrSet(context.Background(), "never-cached",
		countingFetch("v", nil, &calls), Options{Service: "charging_api"})

	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want *UnavailableError", err)
	}
	if unavailable.Service != "charging_api" {
		t.Errorf("Service = %q, want charging_api", unavailable.Service)
	}
	if calls != 0 {
		t.Errorf("fetch calls = %d, want 0 with open circuit", calls)
	}
}

func TestFetchFailureServesStaleFallback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	calls := 0
	opts := Options{Service: "charging_api", TTL: time.Minute}
	if _, err := f.orch.GetOrSet(ctx, "k", countingFetch("v1", nil, &calls), opts); err != nil {
		t.Fatalf("priming GetOrSet failed: %v", err)
	}

	*f.now = f.now.Add(2 * time.Minute)
	raw, err := f.orch.GetOrSet(ctx, "k",
		countingFetch(nil, errors.New("vendor timeout"), &calls), opts)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if string(raw) != `"v1"` {
		t.Errorf("raw = %s, want stale fallback", raw)
	}
	if len(f.gate.failures) != 1 {
		t.Errorf("breaker failures = %d, want 1 recorded", len(f.gate.failures))
	}
}

func TestFetchFailureNoCachePropagates(t *testing.T) {
	f := setup(t)

	fetchErr := errors.New("vendor timeout")
	calls := 0
	_, err := f.orch.GetOrSet(context.Background(), "never-cached",
		countingFetch(nil, fetchErr, &calls), Options{Service: "charging_api"})
	if !errors.Is(err, fetchErr) {
		t.Errorf("err = %v, want wrapped fetch error", err)
	}
	if len(f.gate.failures) != 1 {
		t.Errorf("breaker failures = %d, want 1", len(f.gate.failures))
	}
}

func TestNoServiceSkipsBreaker(t *testing.T) {
	f := setup(t)
	f.gate.allow = false // would deny if consulted

	calls := 0
	_, err := f.orch.GetOrSet(context.Background(), "k",
		countingFetch("v", nil, &calls), Options{})
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if len(f.gate.successes) != 0 {
		t.Error("breaker must not be consulted without a service name")
	}
}

func TestCacheReadOutageFailsOpen(t *testing.T) {
	f := setup(t)
	f.meta.failReads = true

	calls := 0
	raw, err := f.orch.GetOrSet(context.Background(), "k",
		countingFetch("v", nil, &calls), Options{Service: "charging_api"})
	if err != nil {
		t.Fatalf("GetOrSet failed during cache outage: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1: outage degrades to direct fetch", calls)
	}
	if string(raw) != `"v"` {
		t.Errorf("raw = %s, want fetched value", raw)
	}
}

func TestBreakerCheckErrorFailsOpen(t *testing.T) {
	f := setup(t)
	f.gate.allow = false
	f.gate.allowErr = errors.New("simulated store outage")

	calls := 0
	_, err := f.orch.GetOrSet(context.Background(), "k",
		countingFetch("v", nil, &calls), Options{Service: "charging_api"})
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 when breaker state is unknown", calls)
	}
}

func TestStaleHitRefreshesThroughFetch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	calls := 0
	opts := Options{TTL: time.Minute}
	if _, err := f.orch.GetOrSet(ctx, "station:42",
		countingFetch(map[string]string{"status": "Faulted"}, nil, &calls), opts); err != nil {
		t.Fatalf("priming GetOrSet failed: %v", err)
	}

	// Within the TTL the cached value is returned untouched.
	*f.now = f.now.Add(30 * time.Second)
	raw, err := f.orch.GetOrSet(ctx, "station:42",
		countingFetch(map[string]string{"status": "Available"}, nil, &calls), opts)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if string(raw) != `{"status":"Faulted"}` || calls != 1 {
		t.Errorf("within TTL: raw = %s calls = %d, want cached Faulted and 1 call", raw, calls)
	}

	// Past the TTL the stale entry forces a refresh.
	*f.now = f.now.Add(60 * time.Second)
	raw, err = f.orch.GetOrSet(ctx, "station:42",
		countingFetch(map[string]string{"status": "Available"}, nil, &calls), opts)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if string(raw) != `{"status":"Available"}` || calls != 2 {
		t.Errorf("past TTL: raw = %s calls = %d, want refreshed value and 2 calls", raw, calls)
	}
}

func TestGetOrSetAsDecodesTyped(t *testing.T) {
	f := setup(t)

	type stationStatus struct {
		Status  string `json:"status"`
		PowerKW int    `json:"power_kw"`
	}

	fetch := func(_ context.Context) (stationStatus, error) {
		return stationStatus{Status: "available", PowerKW: 150}, nil
	}

	got, err := GetOrSetAs(context.Background(), f.orch, "station:7", fetch, Options{})
	if err != nil {
		t.Fatalf("GetOrSetAs failed: %v", err)
	}
	if got.Status != "available" || got.PowerKW != 150 {
		t.Errorf("got = %+v, want decoded struct", got)
	}

	// Second call decodes the cached bytes without fetching.
	got, err = GetOrSetAs(context.Background(), f.orch, "station:7",
		func(_ context.Context) (stationStatus, error) {
			t.Fatal("fetch must not run on a fresh hit")
			return stationStatus{}, nil
		}, Options{})
	if err != nil {
		t.Fatalf("second GetOrSetAs failed: %v", err)
	}
	if got.PowerKW != 150 {
		t.Errorf("cached decode = %+v, want original struct", got)
	}
}
