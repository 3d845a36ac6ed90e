package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryTenantLocker serializes work per tenant inside one process. Use a
// shared locker (see adapters/redis) when several instances run sweeps.
type MemoryTenantLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	seq   uint64
	nowFn func() time.Time
}

type memoryLock struct {
	token uint64
	until time.Time
}

func NewMemoryTenantLocker() *MemoryTenantLocker {
	return &MemoryTenantLocker{
		locks: make(map[string]memoryLock),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryTenantLocker) Acquire(_ context.Context, tenantID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: tenant locker is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("core: tenant id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[tenantID]; ok && now.Before(held.until) {
		return nil, fmt.Errorf("%w for tenant %q", ErrLockHeld, tenantID)
	}
	l.seq++
	l.locks[tenantID] = memoryLock{token: l.seq, until: now.Add(ttl)}
	return &memoryLockHandle{locker: l, tenantID: tenantID, token: l.seq}, nil
}

// memoryLockHandle only releases the lock it acquired; an expired lock taken
// over by another caller is left alone.
type memoryLockHandle struct {
	locker   *MemoryTenantLocker
	tenantID string
	token    uint64
	once     sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		if held, ok := h.locker.locks[h.tenantID]; ok && held.token == h.token {
			delete(h.locker.locks, h.tenantID)
		}
		h.locker.mu.Unlock()
	})
	return nil
}

var _ TenantLocker = (*MemoryTenantLocker)(nil)
