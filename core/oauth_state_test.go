package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryOAuthStateStore_SavePrunesExpiredEntries(t *testing.T) {
	store := NewMemoryOAuthStateStoreWithLimits(time.Minute, 8)
	now := time.Now().UTC()

	if err := store.Save(context.Background(), OAuthStateRecord{
		State:     "stale_state",
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-1 * time.Minute),
	}); err != nil {
		t.Fatalf("save stale state: %v", err)
	}
	if err := store.Save(context.Background(), OAuthStateRecord{
		State:     "fresh_state",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("save fresh state: %v", err)
	}

	if _, err := store.Consume(context.Background(), "stale_state"); err == nil {
		t.Fatalf("expected stale state to be pruned and unavailable")
	}
	if _, err := store.Consume(context.Background(), "fresh_state"); err != nil {
		t.Fatalf("expected fresh state to remain available, got %v", err)
	}
}

func TestMemoryOAuthStateStore_SaveEnforcesMaxEntries(t *testing.T) {
	store := NewMemoryOAuthStateStoreWithLimits(time.Hour, 2)
	now := time.Now().UTC()

	if err := store.Save(context.Background(), OAuthStateRecord{
		State:     "state_a",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("save state_a: %v", err)
	}
	if err := store.Save(context.Background(), OAuthStateRecord{
		State:     "state_b",
		CreatedAt: now.Add(time.Second),
	}); err != nil {
		t.Fatalf("save state_b: %v", err)
	}
	if err := store.Save(context.Background(), OAuthStateRecord{
		State:     "state_c",
		CreatedAt: now.Add(2 * time.Second),
	}); err != nil {
		t.Fatalf("save state_c: %v", err)
	}

	if _, err := store.Consume(context.Background(), "state_a"); err == nil {
		t.Fatalf("expected oldest state to be evicted when capacity is exceeded")
	}
	if _, err := store.Consume(context.Background(), "state_b"); err != nil {
		t.Fatalf("expected state_b to remain after eviction, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "state_c"); err != nil {
		t.Fatalf("expected state_c to remain after eviction, got %v", err)
	}
}

func TestMemoryOAuthStateStore_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	store := NewMemoryOAuthStateStore(time.Minute)
	ctx := context.Background()
	if err := store.Save(ctx, OAuthStateRecord{State: "race", TenantID: "t1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	const workers = 16
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", successes)
	}
}

func TestService_ValidateAndConsumeState(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	state, err := h.svc.CreateState(ctx, "tenant_a")
	if err != nil {
		t.Fatalf("create state: %v", err)
	}
	if len(state) < 43 {
		t.Fatalf("expected at least 256 bits of state, got %q", state)
	}

	record, err := h.svc.ValidateAndConsumeState(ctx, state, "tenant_a")
	if err != nil {
		t.Fatalf("validate state: %v", err)
	}
	if record.TenantID != "tenant_a" {
		t.Fatalf("expected tenant_a, got %q", record.TenantID)
	}
	if !record.ExpiresAt.Equal(record.CreatedAt.Add(DefaultStateTTL)) {
		t.Fatalf("expected a %s ttl, got %s", DefaultStateTTL, record.ExpiresAt.Sub(record.CreatedAt))
	}

	if _, err := h.svc.ValidateAndConsumeState(ctx, state, "tenant_a"); !IsStateError(err) {
		t.Fatalf("expected replay to fail with a state error, got %v", err)
	}
}

func TestService_ValidateAndConsumeState_TenantMismatchBurnsState(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	state, err := h.svc.CreateState(ctx, "tenant_a")
	if err != nil {
		t.Fatalf("create state: %v", err)
	}
	if _, err := h.svc.ValidateAndConsumeState(ctx, state, "tenant_b"); !IsStateError(err) {
		t.Fatalf("expected tenant mismatch state error, got %v", err)
	}
	if _, err := h.svc.ValidateAndConsumeState(ctx, state, "tenant_a"); !IsStateError(err) {
		t.Fatalf("expected mismatched state to be consumed, got %v", err)
	}
}

func TestService_ValidateAndConsumeState_Expired(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	state, err := h.svc.CreateState(ctx, "tenant_a")
	if err != nil {
		t.Fatalf("create state: %v", err)
	}
	h.clock.Advance(DefaultStateTTL + time.Second)

	_, err = h.svc.ValidateAndConsumeState(ctx, state, "tenant_a")
	if !IsStateError(err) {
		t.Fatalf("expected expired state error, got %v", err)
	}
	if got := ClassifyFailure(err); got != FailureNeedsReconnect {
		t.Fatalf("expected needs_reconnect, got %q", got)
	}
}

func TestService_ValidateAndConsumeState_EmptyState(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.svc.ValidateAndConsumeState(context.Background(), "  ", "tenant_a"); !IsStateError(err) {
		t.Fatalf("expected empty state to be rejected, got %v", err)
	}
}
