package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrRecordNotFound         = errors.New("core: record not found")
	ErrAccountVersionConflict = errors.New("core: external account version conflict")
	ErrContentOwnership       = errors.New("core: content item belongs to another tenant")
	ErrLockHeld               = errors.New("core: tenant lock already held")
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Cipher encrypts values under a key bound to the tenant.
type Cipher interface {
	Encrypt(ctx context.Context, tenantID string, plaintext string) (string, error)
	Decrypt(ctx context.Context, tenantID string, blob string) (string, error)
}

type CredentialSetStore interface {
	// Activate deactivates every record of the tenant and inserts record as the
	// only active one, atomically.
	Activate(ctx context.Context, record EncryptedCredentialRecord) (EncryptedCredentialRecord, error)
	GetActive(ctx context.Context, tenantID string) (EncryptedCredentialRecord, error)
	Get(ctx context.Context, id string) (EncryptedCredentialRecord, error)
	List(ctx context.Context, tenantID string) ([]EncryptedCredentialRecord, error)
	Update(ctx context.Context, record EncryptedCredentialRecord) (EncryptedCredentialRecord, error)
	Delete(ctx context.Context, id string) error
}

type OAuthStateStore interface {
	Save(ctx context.Context, record OAuthStateRecord) error
	// Consume returns and removes the record in one step. Two concurrent
	// consumers of the same state never both succeed.
	Consume(ctx context.Context, state string) (OAuthStateRecord, error)
	Delete(ctx context.Context, state string) error
}

// ExpiredStatePurger is implemented by state stores that keep expired records
// until something removes them.
type ExpiredStatePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type UpdateTokenInput struct {
	TenantID        string
	AccessToken     string
	ExpiresAt       *time.Time
	ExpectedVersion int64
}

type ExternalAccountStore interface {
	Get(ctx context.Context, tenantID string) (ExternalAccount, error)
	// Replace swaps any existing account of the tenant for account.
	Replace(ctx context.Context, account ExternalAccount) (ExternalAccount, error)
	UpdateToken(ctx context.Context, in UpdateTokenInput) (ExternalAccount, error)
	Delete(ctx context.Context, tenantID string) error
	ListTenantIDs(ctx context.Context) ([]string, error)
}

type ContentItemStore interface {
	Upsert(ctx context.Context, item ContentItem) (ContentItem, error)
	List(ctx context.Context, query ContentQuery) ([]ContentItem, int, error)
	DeleteByTenant(ctx context.Context, tenantID string) (int, error)
}

// TenantConnectionPurger removes the external account and its content in a
// single transaction.
type TenantConnectionPurger interface {
	PurgeTenantConnection(ctx context.Context, tenantID string) error
}

type StoreProvider interface {
	CredentialSetStore() CredentialSetStore
	OAuthStateStore() OAuthStateStore
	ExternalAccountStore() ExternalAccountStore
	ContentItemStore() ContentItemStore
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	// ExpiresIn is in seconds, zero when the token does not expire.
	ExpiresIn int64
}

// maxTokenLifetime caps ExpiresIn so the conversion to a duration cannot
// overflow.
const maxTokenLifetime = 10 * 365 * 24 * time.Hour

func (r TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if r.ExpiresIn <= 0 {
		return nil
	}
	lifetime := maxTokenLifetime
	if r.ExpiresIn < int64(maxTokenLifetime/time.Second) {
		lifetime = time.Duration(r.ExpiresIn) * time.Second
	}
	at := now.Add(lifetime).UTC()
	return &at
}

type Identity struct {
	ID   string
	Name string
}

type Discovery struct {
	SubAccounts        []SubAccount
	SecondaryAccountID string
}

type TokenExchanger interface {
	BuildAuthorizationURL(app AppCredentials, state string, scopes []string) (string, error)
	ExchangeCode(ctx context.Context, app AppCredentials, code string) (TokenResponse, error)
	UpgradeToken(ctx context.Context, app AppCredentials, token string) (TokenResponse, error)
	FetchIdentity(ctx context.Context, token string) (Identity, error)
	DiscoverSubAccounts(ctx context.Context, token string) (Discovery, error)
}

type ContentListRequest struct {
	TenantID    string
	SourceID    string
	Kind        ContentKind
	AccessToken string
	After       string
	Limit       int
}

type ContentLister interface {
	ListContent(ctx context.Context, req ContentListRequest) (ContentPage, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type TenantLocker interface {
	Acquire(ctx context.Context, tenantID string, ttl time.Duration) (LockHandle, error)
}

type RateLimitKey struct {
	ProviderID string
	ScopeType  string
	ScopeID    string
	BucketKey  string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

// ConnectorService is the operation surface consumed by commands, queries and
// transports.
type ConnectorService interface {
	StoreCredentials(ctx context.Context, req StoreCredentialsRequest) (string, error)
	GetActiveCredentials(ctx context.Context, tenantID string) (CredentialSet, error)
	ListCredentialSets(ctx context.Context, tenantID string) ([]CredentialSetSummary, error)
	UpdateCredentialSet(ctx context.Context, credentialID string, patch CredentialSetPatch) (CredentialSetSummary, error)
	DeleteCredentialSet(ctx context.Context, credentialID string) error
	BeginAuth(ctx context.Context, tenantID string) (BeginAuthResponse, error)
	CompleteAuth(ctx context.Context, req CompleteAuthRequest) (CompleteAuthResponse, error)
	Disconnect(ctx context.Context, tenantID string) error
	GetExternalAccount(ctx context.Context, tenantID string) (ExternalAccount, error)
	ListContent(ctx context.Context, req ListContentRequest) (ContentPage, error)
	TriggerSync(ctx context.Context, tenantID string) (TriggerSyncResult, error)
	RefreshIfNeeded(ctx context.Context, tenantID string) (RefreshOutcome, error)
	RefreshAll(ctx context.Context) (RefreshSweepReport, error)
	ScheduledSync(ctx context.Context) (SweepReport, error)
	Backfill(ctx context.Context, tenantID string, sourceID string, limit int, maxPages int) (SyncOutcome, error)
}
