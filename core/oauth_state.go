package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	oauthStateBytes              = 32
	defaultMemoryStateMaxEntries = 10000
)

type MemoryOAuthStateStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]OAuthStateRecord
	nowFn      func() time.Time
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	return NewMemoryOAuthStateStoreWithLimits(ttl, defaultMemoryStateMaxEntries)
}

func NewMemoryOAuthStateStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryOAuthStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMemoryStateMaxEntries
	}
	return &MemoryOAuthStateStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]OAuthStateRecord{},
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryOAuthStateStore) Save(_ context.Context, record OAuthStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: oauth state is required")
	}

	now := s.nowFn()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.entries[state] = record
	s.evictLocked()
	return nil
}

func (s *MemoryOAuthStateStore) Consume(_ context.Context, state string) (OAuthStateRecord, error) {
	if s == nil {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth state %w", ErrRecordNotFound)
	}
	return record, nil
}

func (s *MemoryOAuthStateStore) Delete(_ context.Context, state string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.entries, strings.TrimSpace(state))
	s.mu.Unlock()
	return nil
}

func (s *MemoryOAuthStateStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.entries)
	s.pruneLocked(now)
	return before - len(s.entries), nil
}

func (s *MemoryOAuthStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryOAuthStateStore) pruneLocked(now time.Time) {
	for key, record := range s.entries {
		if record.Expired(now) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryOAuthStateStore) evictLocked() {
	overflow := len(s.entries) - s.maxEntries
	if overflow <= 0 {
		return
	}
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].CreatedAt.Before(s.entries[keys[j]].CreatedAt)
	})
	for _, key := range keys[:overflow] {
		delete(s.entries, key)
	}
}

func generateOAuthState() (string, error) {
	raw := make([]byte, oauthStateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CreateState issues a fresh single-use state bound to tenantID.
func (s *Service) CreateState(ctx context.Context, tenantID string) (state string, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "create_state", err, map[string]any{"tenant_id": tenantID})
	}()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", NewFieldValidationError("tenant_id", "tenant id is required")
	}
	state, err = generateOAuthState()
	if err != nil {
		return "", s.mapError(err)
	}
	now := s.now()
	if err = s.states.Save(ctx, OAuthStateRecord{
		State:     state,
		TenantID:  tenantID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.OAuth.StateTTL),
	}); err != nil {
		return "", s.mapError(err)
	}
	return state, nil
}

// ValidateAndConsumeState removes the state before checking it, so a state
// presented with the wrong tenant or after expiry cannot be retried.
func (s *Service) ValidateAndConsumeState(ctx context.Context, state string, tenantID string) (OAuthStateRecord, error) {
	state = strings.TrimSpace(state)
	tenantID = strings.TrimSpace(tenantID)
	if state == "" {
		return OAuthStateRecord{}, NewStateError("state is required")
	}
	record, err := s.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return OAuthStateRecord{}, NewStateError("unknown or already used")
		}
		return OAuthStateRecord{}, s.mapError(err)
	}
	if record.TenantID != tenantID {
		return OAuthStateRecord{}, NewStateError("tenant mismatch")
	}
	if record.Expired(s.now()) {
		return OAuthStateRecord{}, NewStateError("expired")
	}
	return record, nil
}

// PurgeExpiredStates removes expired states when the configured store keeps
// them around. Stores that expire records on their own report zero.
func (s *Service) PurgeExpiredStates(ctx context.Context) (purged int, err error) {
	purger, ok := s.states.(ExpiredStatePurger)
	if !ok {
		return 0, nil
	}
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "purge_expired_states", err, map[string]any{"purged": purged})
	}()

	purged, err = purger.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, s.mapError(err)
	}
	return purged, nil
}

func (s *Service) CleanupState(ctx context.Context, state string) error {
	state = strings.TrimSpace(state)
	if state == "" {
		return nil
	}
	if err := s.states.Delete(ctx, state); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return s.mapError(err)
	}
	return nil
}
