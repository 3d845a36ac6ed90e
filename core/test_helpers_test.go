package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// prefixCipher tags each blob with its tenant so a wrong-tenant decrypt fails
// the way a real key mismatch would.
type prefixCipher struct{}

func (prefixCipher) Encrypt(_ context.Context, tenantID string, plaintext string) (string, error) {
	return "enc:" + tenantID + ":" + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (prefixCipher) Decrypt(_ context.Context, tenantID string, blob string) (string, error) {
	prefix := "enc:" + tenantID + ":"
	if !strings.HasPrefix(blob, prefix) {
		return "", NewDecryptionError(tenantID)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, prefix))
	if err != nil {
		return "", NewDecryptionError(tenantID)
	}
	return string(raw), nil
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	records map[string]EncryptedCredentialRecord
	order   []string
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{records: map[string]EncryptedCredentialRecord{}}
}

func (s *memoryCredentialStore) Activate(_ context.Context, record EncryptedCredentialRecord) (EncryptedCredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.records {
		if existing.TenantID == record.TenantID && existing.Active {
			existing.Active = false
			s.records[id] = existing
		}
	}
	record.Active = true
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	return record, nil
}

func (s *memoryCredentialStore) GetActive(_ context.Context, tenantID string) (EncryptedCredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.TenantID == tenantID && record.Active {
			return record, nil
		}
	}
	return EncryptedCredentialRecord{}, ErrRecordNotFound
}

func (s *memoryCredentialStore) Get(_ context.Context, id string) (EncryptedCredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return EncryptedCredentialRecord{}, ErrRecordNotFound
	}
	return record, nil
}

func (s *memoryCredentialStore) List(_ context.Context, tenantID string) ([]EncryptedCredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []EncryptedCredentialRecord{}
	for _, id := range s.order {
		if record, ok := s.records[id]; ok && record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *memoryCredentialStore) Update(_ context.Context, record EncryptedCredentialRecord) (EncryptedCredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return EncryptedCredentialRecord{}, ErrRecordNotFound
	}
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryCredentialStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memoryCredentialStore) activeCount(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.records {
		if record.TenantID == tenantID && record.Active {
			count++
		}
	}
	return count
}

type memoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]ExternalAccount
	// beforeUpdate runs inside UpdateToken before the version check.
	beforeUpdate func()
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{accounts: map[string]ExternalAccount{}}
}

func (s *memoryAccountStore) Get(_ context.Context, tenantID string) (ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[tenantID]
	if !ok {
		return ExternalAccount{}, fmt.Errorf("account %q: %w", tenantID, ErrRecordNotFound)
	}
	return account, nil
}

func (s *memoryAccountStore) Replace(_ context.Context, account ExternalAccount) (ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.Version = s.accounts[account.TenantID].Version + 1
	s.accounts[account.TenantID] = account
	return account, nil
}

func (s *memoryAccountStore) UpdateToken(_ context.Context, in UpdateTokenInput) (ExternalAccount, error) {
	if s.beforeUpdate != nil {
		s.beforeUpdate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[in.TenantID]
	if !ok {
		return ExternalAccount{}, ErrRecordNotFound
	}
	if account.Version != in.ExpectedVersion {
		return ExternalAccount{}, ErrAccountVersionConflict
	}
	account.AccessToken = in.AccessToken
	account.ExpiresAt = in.ExpiresAt
	account.Version++
	s.accounts[in.TenantID] = account
	return account, nil
}

func (s *memoryAccountStore) Delete(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[tenantID]; !ok {
		return ErrRecordNotFound
	}
	delete(s.accounts, tenantID)
	return nil
}

func (s *memoryAccountStore) ListTenantIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for tenantID := range s.accounts {
		out = append(out, tenantID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryAccountStore) put(account ExternalAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.Version == 0 {
		account.Version = 1
	}
	s.accounts[account.TenantID] = account
}

type memoryContentStore struct {
	mu    sync.Mutex
	items map[string]ContentItem
	// failIDs makes Upsert fail for the listed external ids.
	failIDs map[string]error
}

func newMemoryContentStore() *memoryContentStore {
	return &memoryContentStore{items: map[string]ContentItem{}, failIDs: map[string]error{}}
}

func (s *memoryContentStore) Upsert(_ context.Context, item ContentItem) (ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failIDs[item.ExternalID]; err != nil {
		return ContentItem{}, err
	}
	if existing, ok := s.items[item.ExternalID]; ok {
		if existing.TenantID != item.TenantID {
			return ContentItem{}, ErrContentOwnership
		}
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = item.FetchedAt
	}
	s.items[item.ExternalID] = item
	return item, nil
}

func (s *memoryContentStore) List(_ context.Context, query ContentQuery) ([]ContentItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []ContentItem{}
	for _, item := range s.items {
		if item.TenantID != query.TenantID {
			continue
		}
		if query.SourceID != "" && item.SourceID != query.SourceID {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].PublishedAt.Equal(matched[j].PublishedAt) {
			return matched[i].ExternalID < matched[j].ExternalID
		}
		return matched[i].PublishedAt.After(matched[j].PublishedAt)
	})
	total := len(matched)
	if query.Offset >= total {
		return []ContentItem{}, total, nil
	}
	end := min(total, query.Offset+query.Limit)
	return matched[query.Offset:end], total, nil
}

func (s *memoryContentStore) DeleteByTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, item := range s.items {
		if item.TenantID == tenantID {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryContentStore) count(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items {
		if item.TenantID == tenantID {
			count++
		}
	}
	return count
}

// fakeGraph stands in for the Graph API client. Content pages are keyed by
// source id and then by the after cursor.
type fakeGraph struct {
	mu sync.Mutex

	exchangeErr error
	upgradeErr  error
	upgradeIn   int64
	identity    Identity
	discovery   Discovery
	pages       map[string]map[string]ContentPage
	listErr     map[string]error

	upgradeCalls int
	listCalls    []ContentListRequest
	upgradeHook  func()
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		upgradeIn: 5184000,
		identity:  Identity{ID: "user_1", Name: "Jane"},
		discovery: Discovery{
			SubAccounts:        []SubAccount{{ID: "page_1", Name: "Main Page", AccessToken: "page-token"}},
			SecondaryAccountID: "ig_1",
		},
		pages:   map[string]map[string]ContentPage{},
		listErr: map[string]error{},
	}
}

func (g *fakeGraph) BuildAuthorizationURL(app AppCredentials, state string, scopes []string) (string, error) {
	query := url.Values{}
	query.Set("client_id", app.AppID)
	query.Set("redirect_uri", app.RedirectURI)
	query.Set("state", state)
	query.Set("scope", strings.Join(scopes, ","))
	return "https://auth.test/dialog?" + query.Encode(), nil
}

func (g *fakeGraph) ExchangeCode(_ context.Context, _ AppCredentials, code string) (TokenResponse, error) {
	if g.exchangeErr != nil {
		return TokenResponse{}, g.exchangeErr
	}
	return TokenResponse{AccessToken: "short-" + code, TokenType: "bearer"}, nil
}

func (g *fakeGraph) UpgradeToken(ctx context.Context, _ AppCredentials, token string) (TokenResponse, error) {
	g.mu.Lock()
	g.upgradeCalls++
	hook := g.upgradeHook
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return TokenResponse{}, err
	}
	if g.upgradeErr != nil {
		return TokenResponse{}, g.upgradeErr
	}
	return TokenResponse{AccessToken: "long-" + token, TokenType: "bearer", ExpiresIn: g.upgradeIn}, nil
}

func (g *fakeGraph) FetchIdentity(context.Context, string) (Identity, error) {
	return g.identity, nil
}

func (g *fakeGraph) DiscoverSubAccounts(context.Context, string) (Discovery, error) {
	return g.discovery, nil
}

func (g *fakeGraph) ListContent(_ context.Context, req ContentListRequest) (ContentPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls = append(g.listCalls, req)
	if err := g.listErr[req.SourceID]; err != nil {
		return ContentPage{}, err
	}
	page := g.pages[req.SourceID][req.After]
	page.HasMore = page.NextCursor != ""
	return page, nil
}

func (g *fakeGraph) setPage(sourceID string, after string, page ContentPage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pages[sourceID] == nil {
		g.pages[sourceID] = map[string]ContentPage{}
	}
	g.pages[sourceID][after] = page
}

func (g *fakeGraph) upgrades() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upgradeCalls
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testHarness struct {
	svc         *Service
	credentials *memoryCredentialStore
	accounts    *memoryAccountStore
	content     *memoryContentStore
	states      *MemoryOAuthStateStore
	graph       *fakeGraph
	clock       *testClock
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{
		credentials: newMemoryCredentialStore(),
		accounts:    newMemoryAccountStore(),
		content:     newMemoryContentStore(),
		graph:       newFakeGraph(),
		clock:       newTestClock(),
	}
	h.states = NewMemoryOAuthStateStore(DefaultStateTTL)
	h.states.nowFn = h.clock.Now

	base := []Option{
		WithCipher(prefixCipher{}),
		WithCredentialSetStore(h.credentials),
		WithOAuthStateStore(h.states),
		WithExternalAccountStore(h.accounts),
		WithContentItemStore(h.content),
		WithTokenExchanger(h.graph),
		WithTenantLocker(NewMemoryTenantLocker()),
		WithClock(h.clock.Now),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func validStoreRequest(tenantID string) StoreCredentialsRequest {
	return StoreCredentialsRequest{
		TenantID:    tenantID,
		AppID:       "1234567890",
		AppSecret:   "abcdefghijklmnopqrst",
		RedirectURI: "https://x.test/cb",
	}
}

// connect stores credentials and runs the OAuth round trip for tenantID.
func (h *testHarness) connect(t *testing.T, tenantID string) ExternalAccount {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.StoreCredentials(ctx, validStoreRequest(tenantID)); err != nil {
		t.Fatalf("store credentials: %v", err)
	}
	begin, err := h.svc.BeginAuth(ctx, tenantID)
	if err != nil {
		t.Fatalf("begin auth: %v", err)
	}
	out, err := h.svc.CompleteAuth(ctx, CompleteAuthRequest{TenantID: tenantID, Code: "code", State: begin.State})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}
	return out.Account
}

func mediaItem(id string, publishedAt time.Time) ContentItem {
	return ContentItem{ExternalID: id, Kind: ContentKindMedia, MediaType: "IMAGE", PublishedAt: publishedAt}
}

func postItem(id string, publishedAt time.Time) ContentItem {
	return ContentItem{ExternalID: id, Kind: ContentKindPost, MediaType: "STATUS", PublishedAt: publishedAt}
}
