package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-social-sync/core"
	"github.com/goliatone/go-social-sync/ratelimit"
	"github.com/redis/go-redis/v9"
)

const defaultRateLimitRetention = 24 * time.Hour

// RateLimitStateStore keeps each bucket as one JSON value. Values expire after
// the retention window or the throttle deadline, whichever is later.
type RateLimitStateStore struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewRateLimitStateStore(client redis.Cmdable, prefix string, retention time.Duration) (*RateLimitStateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisadapter: client is required")
	}
	if retention <= 0 {
		retention = defaultRateLimitRetention
	}
	return &RateLimitStateStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type rateLimitValue struct {
	ProviderID     string         `json:"provider_id"`
	ScopeType      string         `json:"scope_type"`
	ScopeID        string         `json:"scope_id"`
	BucketKey      string         `json:"bucket_key"`
	UsagePercent   int            `json:"usage_percent"`
	RetryAfterMS   *int64         `json:"retry_after_ms,omitempty"`
	ThrottledUntil *time.Time     `json:"throttled_until,omitempty"`
	LastStatus     int            `json:"last_status"`
	Attempts       int            `json:"attempts"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	if err != nil {
		return ratelimit.State{}, err
	}
	var value rateLimitValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return ratelimit.State{}, fmt.Errorf("redisadapter: decode rate limit state: %w", err)
	}
	state := ratelimit.State{
		Key: core.RateLimitKey{
			ProviderID: value.ProviderID,
			ScopeType:  value.ScopeType,
			ScopeID:    value.ScopeID,
			BucketKey:  value.BucketKey,
		},
		UsagePercent:   value.UsagePercent,
		ThrottledUntil: value.ThrottledUntil,
		LastStatus:     value.LastStatus,
		Attempts:       value.Attempts,
		UpdatedAt:      value.UpdatedAt,
		Metadata:       value.Metadata,
	}
	if value.RetryAfterMS != nil {
		retry := time.Duration(*value.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &retry
	}
	return state, nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	value := rateLimitValue{
		ProviderID:     state.Key.ProviderID,
		ScopeType:      state.Key.ScopeType,
		ScopeID:        state.Key.ScopeID,
		BucketKey:      state.Key.BucketKey,
		UsagePercent:   state.UsagePercent,
		ThrottledUntil: state.ThrottledUntil,
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		UpdatedAt:      state.UpdatedAt,
		Metadata:       state.Metadata,
	}
	if state.RetryAfter != nil {
		ms := state.RetryAfter.Milliseconds()
		value.RetryAfterMS = &ms
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := s.retention
	if until := state.ThrottledUntil; until != nil {
		if remaining := until.Sub(s.now()); remaining > ttl {
			ttl = remaining
		}
	}
	return s.client.Set(ctx, s.key(state.Key), payload, ttl).Err()
}

func (s *RateLimitStateStore) key(key core.RateLimitKey) string {
	return joinKey(s.prefix, "ratelimit", ratelimit.StateKey(key))
}

var _ ratelimit.StateStore = (*RateLimitStateStore)(nil)
