package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-sync/core"
	"github.com/redis/go-redis/v9"
)

type OAuthStateStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type StateStoreOption func(*OAuthStateStore)

func WithStatePrefix(prefix string) StateStoreOption {
	return func(s *OAuthStateStore) {
		s.prefix = prefix
	}
}

func WithStateClock(now func() time.Time) StateStoreOption {
	return func(s *OAuthStateStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewOAuthStateStore(client redis.Cmdable, ttl time.Duration, opts ...StateStoreOption) (*OAuthStateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisadapter: client is required")
	}
	if ttl <= 0 {
		ttl = core.DefaultStateTTL
	}
	store := &OAuthStateStore{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

type stateValue struct {
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Save stores the record with a Redis TTL matching its expiry, so expired
// states disappear without a purge job.
func (s *OAuthStateStore) Save(ctx context.Context, record core.OAuthStateRecord) error {
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("redisadapter: oauth state is required")
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("redisadapter: oauth state already expired")
	}
	payload, err := json.Marshal(stateValue{
		TenantID:  record.TenantID,
		CreatedAt: record.CreatedAt.UTC(),
		ExpiresAt: record.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(state), payload, ttl).Err()
}

// Consume relies on GETDEL, so only one caller ever sees the record.
func (s *OAuthStateStore) Consume(ctx context.Context, state string) (core.OAuthStateRecord, error) {
	state = strings.TrimSpace(state)
	raw, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.OAuthStateRecord{}, fmt.Errorf("redisadapter: oauth state %w", core.ErrRecordNotFound)
	}
	if err != nil {
		return core.OAuthStateRecord{}, err
	}
	var value stateValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return core.OAuthStateRecord{}, fmt.Errorf("redisadapter: decode oauth state: %w", err)
	}
	return core.OAuthStateRecord{
		State:     state,
		TenantID:  value.TenantID,
		CreatedAt: value.CreatedAt,
		ExpiresAt: value.ExpiresAt,
	}, nil
}

func (s *OAuthStateStore) Delete(ctx context.Context, state string) error {
	return s.client.Del(ctx, s.key(strings.TrimSpace(state))).Err()
}

func (s *OAuthStateStore) key(state string) string {
	return joinKey(s.prefix, "oauth_state", state)
}

var _ core.OAuthStateStore = (*OAuthStateStore)(nil)
