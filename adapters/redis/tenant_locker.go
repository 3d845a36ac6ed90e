package redisadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-sync/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type TenantLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewTenantLocker(client redis.UniversalClient, prefix string) (*TenantLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redisadapter: client is required")
	}
	return &TenantLocker{client: client, prefix: prefix}, nil
}

func (l *TenantLocker) Acquire(ctx context.Context, tenantID string, ttl time.Duration) (core.LockHandle, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("redisadapter: tenant id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = core.DefaultRefreshLockTTL
	}
	key := joinKey(l.prefix, "tenant_lock", tenantID)
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w for tenant %q", core.ErrLockHeld, tenantID)
	}
	return &lockHandle{client: l.client, key: key, token: token}, nil
}

type lockHandle struct {
	client redis.Scripter
	key    string
	token  string
}

func (h *lockHandle) Unlock(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return unlockScript.Run(context.WithoutCancel(ctx), h.client, []string{h.key}, h.token).Err()
}

var _ core.TenantLocker = (*TenantLocker)(nil)
