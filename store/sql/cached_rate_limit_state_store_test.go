package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-sync/core"
	"github.com/goliatone/go-social-sync/ratelimit"
)

type stubRateLimitStateStore struct {
	mu          sync.Mutex
	state       ratelimit.State
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubRateLimitStateStore) Get(_ context.Context, _ core.RateLimitKey) (ratelimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return ratelimit.State{}, s.getErr
	}
	return cloneRateLimitState(s.state), nil
}

func (s *stubRateLimitStateStore) Upsert(_ context.Context, state ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.state = cloneRateLimitState(state)
	return nil
}

func testStateKey(scopeID string) core.RateLimitKey {
	return core.RateLimitKey{ProviderID: "meta", ScopeType: "tenant", ScopeID: scopeID, BucketKey: "list_media"}
}

func TestCachedRateLimitStateStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			Key:          testStateKey("tenant-cache-1"),
			UsagePercent: 35,
			UpdatedAt:    time.Now().UTC(),
			Metadata:     map[string]any{"source": "base"},
		},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	key := testStateKey("tenant-cache-1")
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}
	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
	if state.UsagePercent != 35 {
		t.Fatalf("expected cached usage 35, got %d", state.UsagePercent)
	}
}

func TestCachedRateLimitStateStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	base := &stubRateLimitStateStore{
		state: ratelimit.State{Key: testStateKey("tenant-cache-2"), UsagePercent: 10, UpdatedAt: time.Now().UTC()},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	key := testStateKey("tenant-cache-2")
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}

	until := time.Now().UTC().Add(time.Minute)
	if err := store.Upsert(context.Background(), ratelimit.State{
		Key:            key,
		UsagePercent:   100,
		ThrottledUntil: &until,
		UpdatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected base upsert call count=1, got %d", base.upsertCalls)
	}

	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get after upsert invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if state.UsagePercent != 100 || state.ThrottledUntil == nil {
		t.Fatalf("expected refreshed throttled state, got %+v", state)
	}
}

func TestCachedRateLimitStateStore_UpsertErrorKeepsCache(t *testing.T) {
	boom := errors.New("write failed")
	base := &stubRateLimitStateStore{
		state:     ratelimit.State{Key: testStateKey("tenant-cache-3"), UsagePercent: 5},
		upsertErr: boom,
	}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	key := testStateKey("tenant-cache-3")
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Upsert(context.Background(), ratelimit.State{Key: key, UsagePercent: 90}); !errors.Is(err, boom) {
		t.Fatalf("expected base upsert error, got %v", err)
	}
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("get after failed upsert: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected cache entry to survive a failed write, base get calls=%d", base.getCalls)
	}
}

func TestCachedRateLimitStateStore_KeyNormalizationUsesSingleCacheEntry(t *testing.T) {
	base := &stubRateLimitStateStore{
		state: ratelimit.State{Key: testStateKey("Tenant-Key-4"), UsagePercent: 20},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	first := core.RateLimitKey{ProviderID: " Meta ", ScopeType: " TENANT ", ScopeID: "Tenant-Key-4", BucketKey: " List_Media "}
	second := testStateKey("Tenant-Key-4")

	if _, err := store.Get(context.Background(), first); err != nil {
		t.Fatalf("first normalized get: %v", err)
	}
	if _, err := store.Get(context.Background(), second); err != nil {
		t.Fatalf("second normalized get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected normalized keys to share cache entry, base get calls=%d", base.getCalls)
	}
}

func TestRateLimitStateCacheKey_Contract(t *testing.T) {
	key, err := RateLimitStateCacheKey(core.RateLimitKey{
		ProviderID: " Meta ",
		ScopeType:  " TENANT ",
		ScopeID:    "Tenant/Alpha Team",
		BucketKey:  " List_Media ",
	})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "socialsync::ratelimit_state::v1::meta::tenant::Tenant%2FAlpha%20Team::list_media"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := RateLimitStateCacheKey(core.RateLimitKey{ProviderID: "meta"}); err == nil {
		t.Fatalf("expected incomplete key to be rejected")
	}
}

func TestCachedRateLimitStateStore_PropagatesBaseErrors(t *testing.T) {
	base := &stubRateLimitStateStore{getErr: ratelimit.ErrStateNotFound}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	_, err = store.Get(context.Background(), testStateKey("tenant-cache-404"))
	if !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestRateLimitCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
