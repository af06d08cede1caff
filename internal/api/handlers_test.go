// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/voltmesh/chargeguard/internal/breaker"
	"github.com/voltmesh/chargeguard/internal/cache"
	"github.com/voltmesh/chargeguard/internal/config"
	"github.com/voltmesh/chargeguard/internal/kvstore"
	"github.com/voltmesh/chargeguard/internal/metastore"
	"github.com/voltmesh/chargeguard/internal/models"
)

// testStore backs every handler dependency in-memory: cache metadata,
// access logs, breaker rows and events, and the analytics surface.
type testStore struct {
	mu       sync.Mutex
	entries  map[string]*models.CacheEntry
	logs     []*models.AccessLogEntry
	breakers map[string]*models.CircuitBreakerState
	events   []*metastore.BreakerEvent
	rollups  []time.Time
	pingErr  error
}

func newTestStore() *testStore {
	return &testStore{
		entries:  make(map[string]*models.CacheEntry),
		breakers: make(map[string]*models.CircuitBreakerState),
	}
}

func (s *testStore) UpsertEntry(_ context.Context, e *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.Key] = &cp
	return nil
}

func (s *testStore) GetEntry(_ context.Context, key string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, metastore.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *testStore) RecordHit(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.HitCount++
		e.LastHitAt = &at
	}
	return nil
}

func (s *testStore) MarkStale(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.ExpiresAt.After(at) {
		e.ExpiresAt = at
	}
	return nil
}

func (s *testStore) MarkInvalid(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.IsValid = false
	}
	return nil
}

func (s *testStore) DeleteEntry(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *testStore) KeysMatching(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range s.entries {
		if pattern == "*" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *testStore) ExpiredKeys(_ context.Context, asOf time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, e := range s.entries {
		if e.ExpiresAt.Before(asOf) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *testStore) Stats(_ context.Context) (*models.CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.CacheStats{TotalEntries: int64(len(s.entries))}, nil
}

func (s *testStore) TypePerformance(_ context.Context) ([]models.TypePerformance, error) {
	return []models.TypePerformance{{Type: models.CacheTypeAPIResult}}, nil
}

func (s *testStore) InsertAccessLog(_ context.Context, entry *models.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *testStore) EnsureBreaker(_ context.Context, service string, d metastore.BreakerDefaults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.breakers[service]; !ok {
		s.breakers[service] = &models.CircuitBreakerState{
			ServiceName:      service,
			State:            models.BreakerClosed,
			FailureThreshold: d.FailureThreshold,
			SuccessThreshold: d.SuccessThreshold,
			TimeoutSeconds:   d.TimeoutSeconds,
		}
	}
	return nil
}

func (s *testStore) GetBreaker(_ context.Context, service string) (*models.CircuitBreakerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[service]
	if !ok {
		return nil, metastore.ErrBreakerNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *testStore) UpdateBreaker(_ context.Context, b *models.CircuitBreakerState, _ string, dReq, dSucc, dFail int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.breakers[b.ServiceName]
	if !ok {
		return metastore.ErrBreakerNotFound
	}
	cp := *b
	cp.TotalRequests = prev.TotalRequests + dReq
	cp.TotalSuccesses = prev.TotalSuccesses + dSucc
	cp.TotalFailures = prev.TotalFailures + dFail
	s.breakers[b.ServiceName] = &cp
	return nil
}

func (s *testStore) ResetBreaker(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[service]
	if !ok {
		return metastore.ErrBreakerNotFound
	}
	b.State = models.BreakerClosed
	b.FailureCount = 0
	b.SuccessCount = 0
	return nil
}

func (s *testStore) ListBreakers(_ context.Context, _ time.Duration) ([]models.BreakerDashboardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.BreakerDashboardRow
	for _, b := range s.breakers {
		rows = append(rows, models.BreakerDashboardRow{ServiceName: b.ServiceName, State: b.State})
	}
	return rows, nil
}

func (s *testStore) InsertBreakerEvent(_ context.Context, e *metastore.BreakerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *testStore) RollupDaily(_ context.Context, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollups = append(s.rollups, day)
	return 2, nil
}

func (s *testStore) DailyStats(_ context.Context, _ int) ([]models.DailyCacheStats, error) {
	return []models.DailyCacheStats{{Type: models.CacheTypeAPIResult, Hits: 10}}, nil
}

func (s *testStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func newTestServer(t *testing.T) (http.Handler, *testStore, *cache.Engine) {
	t.Helper()

	store := newTestStore()
	kv := kvstore.NewMemoryStore()
	eng := cache.NewEngine(kv, store, store)
	reg := breaker.NewRegistry(store, config.BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	})

	handler := NewHandler(eng, reg, store, kv, "test")
	router := NewRouter(handler, &config.ServerConfig{
		RateLimitReqs:   10000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	})
	return router.Setup(), store, eng
}

// doRequest executes a request against the route tree and decodes the
// response envelope.
func doRequest(t *testing.T, h http.Handler, method, path, body string) (int, models.APIResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp models.APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

func TestHealthEndpoints(t *testing.T) {
	h, store, _ := newTestServer(t)

	code, resp := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if code != http.StatusOK || resp.Status != "success" {
		t.Errorf("health = %d/%s, want 200/success", code, resp.Status)
	}

	code, _ = doRequest(t, h, http.MethodGet, "/api/v1/health/live", "")
	if code != http.StatusOK {
		t.Errorf("live = %d, want 200", code)
	}

	code, _ = doRequest(t, h, http.MethodGet, "/api/v1/health/ready", "")
	if code != http.StatusOK {
		t.Errorf("ready = %d, want 200", code)
	}

	// A failing store flips readiness to 503.
	store.mu.Lock()
	store.pingErr = context.DeadlineExceeded
	store.mu.Unlock()
	code, resp = doRequest(t, h, http.MethodGet, "/api/v1/health/ready", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("ready with failing store = %d, want 503", code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Error("expected SERVICE_UNAVAILABLE error code")
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	h, _, eng := newTestServer(t)

	if err := eng.Set(context.Background(), "k", []byte("v"), cache.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	code, resp := doRequest(t, h, http.MethodGet, "/api/v1/cache/stats", "")
	if code != http.StatusOK {
		t.Fatalf("stats = %d, want 200", code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", resp.Data)
	}
	if data["total_entries"].(float64) != 1 {
		t.Errorf("total_entries = %v, want 1", data["total_entries"])
	}
}

func TestCacheDeleteEndpoint(t *testing.T) {
	h, _, eng := newTestServer(t)
	ctx := context.Background()

	if err := eng.Set(ctx, "charger:evgo:42", []byte("v"), cache.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	code, _ := doRequest(t, h, http.MethodDelete, "/api/v1/cache/charger:evgo:42", "")
	if code != http.StatusOK {
		t.Errorf("delete = %d, want 200", code)
	}

	code, resp := doRequest(t, h, http.MethodDelete, "/api/v1/cache/charger:evgo:42", "")
	if code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Error("expected NOT_FOUND error code")
	}
}

func TestCacheSoftDeleteEndpoint(t *testing.T) {
	h, store, eng := newTestServer(t)
	ctx := context.Background()

	if err := eng.Set(ctx, "k", []byte("v"), cache.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	code, _ := doRequest(t, h, http.MethodDelete, "/api/v1/cache/k?soft=true", "")
	if code != http.StatusOK {
		t.Fatalf("soft delete = %d, want 200", code)
	}

	store.mu.Lock()
	entry := store.entries["k"]
	store.mu.Unlock()
	if entry == nil {
		t.Fatal("soft delete must keep the metadata row")
	}
	if entry.IsValid {
		t.Error("soft delete should flag the entry invalid")
	}
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	h, _, eng := newTestServer(t)
	ctx := context.Background()

	for _, k := range []string{"charger:evgo:1", "charger:evgo:2", "kb:faq:1"} {
		if err := eng.Set(ctx, k, []byte("v"), cache.SetOptions{}); err != nil {
			t.Fatalf("Set(%q) failed: %v", k, err)
		}
	}

	code, resp := doRequest(t, h, http.MethodPost, "/api/v1/cache/invalidate",
		`{"pattern":"charger:evgo:*"}`)
	if code != http.StatusOK {
		t.Fatalf("invalidate = %d, want 200", code)
	}
	data := resp.Data.(map[string]interface{})
	if data["removed"].(float64) != 2 {
		t.Errorf("removed = %v, want 2", data["removed"])
	}
}

func TestCacheInvalidateValidation(t *testing.T) {
	h, _, _ := newTestServer(t)

	code, resp := doRequest(t, h, http.MethodPost, "/api/v1/cache/invalidate", `{}`)
	if code != http.StatusBadRequest {
		t.Errorf("empty pattern = %d, want 400", code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Error("expected VALIDATION_FAILED error code")
	}

	code, _ = doRequest(t, h, http.MethodPost, "/api/v1/cache/invalidate", `not-json`)
	if code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", code)
	}
}

func TestCacheCleanupEndpoint(t *testing.T) {
	h, store, eng := newTestServer(t)
	ctx := context.Background()

	if err := eng.Set(ctx, "old", []byte("v"), cache.SetOptions{TTL: time.Second}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	store.mu.Lock()
	store.entries["old"].ExpiresAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	code, resp := doRequest(t, h, http.MethodPost, "/api/v1/cache/cleanup", "")
	if code != http.StatusOK {
		t.Fatalf("cleanup = %d, want 200", code)
	}
	data := resp.Data.(map[string]interface{})
	if data["removed"].(float64) != 1 {
		t.Errorf("removed = %v, want 1", data["removed"])
	}
}

func TestBreakerEndpoints(t *testing.T) {
	h, _, _ := newTestServer(t)

	// Reading a never-seen breaker lazily creates a closed row.
	code, resp := doRequest(t, h, http.MethodGet, "/api/v1/breakers/charging_api", "")
	if code != http.StatusOK {
		t.Fatalf("breaker state = %d, want 200", code)
	}
	data := resp.Data.(map[string]interface{})
	if data["state"] != "closed" {
		t.Errorf("state = %v, want closed", data["state"])
	}

	code, resp = doRequest(t, h, http.MethodGet, "/api/v1/breakers/", "")
	if code != http.StatusOK {
		t.Fatalf("breaker list = %d, want 200", code)
	}
	listData := resp.Data.(map[string]interface{})
	if rows := listData["breakers"].([]interface{}); len(rows) != 1 {
		t.Errorf("breakers = %d rows, want 1", len(rows))
	}

	code, _ = doRequest(t, h, http.MethodPost, "/api/v1/breakers/charging_api/reset", "")
	if code != http.StatusOK {
		t.Errorf("reset = %d, want 200", code)
	}
}

func TestAnalyticsRollupEndpoint(t *testing.T) {
	h, store, _ := newTestServer(t)

	code, resp := doRequest(t, h, http.MethodPost, "/api/v1/analytics/rollup",
		`{"day":"2026-03-14"}`)
	if code != http.StatusOK {
		t.Fatalf("rollup = %d, want 200", code)
	}
	data := resp.Data.(map[string]interface{})
	if data["day"] != "2026-03-14" {
		t.Errorf("day = %v, want 2026-03-14", data["day"])
	}
	if len(store.rollups) != 1 {
		t.Errorf("rollups invoked = %d, want 1", len(store.rollups))
	}

	code, _ = doRequest(t, h, http.MethodPost, "/api/v1/analytics/rollup",
		`{"day":"14/03/2026"}`)
	if code != http.StatusBadRequest {
		t.Errorf("bad day format = %d, want 400", code)
	}
}

func TestAnalyticsDailyEndpoint(t *testing.T) {
	h, _, _ := newTestServer(t)

	code, resp := doRequest(t, h, http.MethodGet, "/api/v1/analytics/daily?days=14", "")
	if code != http.StatusOK {
		t.Fatalf("daily = %d, want 200", code)
	}
	data := resp.Data.(map[string]interface{})
	if data["days"].(float64) != 14 {
		t.Errorf("days = %v, want 14", data["days"])
	}

	code, _ = doRequest(t, h, http.MethodGet, "/api/v1/analytics/daily?days=0", "")
	if code != http.StatusBadRequest {
		t.Errorf("days=0 = %d, want 400", code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	h, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chargeguard_") {
		t.Error("metrics output should contain chargeguard_ series")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	h, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing from response")
	}
}
