package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryTenantLocker_ExclusiveUntilUnlock(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryTenantLocker()

	handle, err := locker.Acquire(ctx, "tenant_1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, "tenant_1", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected lock held, got %v", err)
	}
	if other, err := locker.Acquire(ctx, "tenant_2", time.Minute); err != nil {
		t.Fatalf("expected independent tenants, got %v", err)
	} else {
		_ = other.Unlock(ctx)
	}

	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.Acquire(ctx, "tenant_1", time.Minute); err != nil {
		t.Fatalf("expected lock to be free after unlock, got %v", err)
	}
}

func TestMemoryTenantLocker_StaleHandleKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	locker := NewMemoryTenantLocker()
	locker.nowFn = clock.Now

	stale, err := locker.Acquire(ctx, "tenant_1", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := locker.Acquire(ctx, "tenant_1", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be taken over, got %v", err)
	}

	if err := stale.Unlock(ctx); err != nil {
		t.Fatalf("stale unlock: %v", err)
	}
	if _, err := locker.Acquire(ctx, "tenant_1", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected the new owner to keep the lock, got %v", err)
	}
}
