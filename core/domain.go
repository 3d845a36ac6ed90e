package core

import (
	"strings"
	"time"
)

const (
	DefaultCredentialDisplayName = "Default"
	ProviderMeta                 = "meta"
)

type ContentKind string

const (
	ContentKindMedia ContentKind = "media"
	ContentKindPost  ContentKind = "post"
)

func (k ContentKind) Valid() bool {
	switch k {
	case ContentKindMedia, ContentKindPost:
		return true
	default:
		return false
	}
}

type FailureClass string

const (
	FailureNotConfigured  FailureClass = "not_configured"
	FailureNeedsReconnect FailureClass = "needs_reconnect"
	FailureTransient      FailureClass = "transient"
	FailureInvalidInput   FailureClass = "invalid_input"
	FailureInternal       FailureClass = "internal"
)

// EncryptedCredentialRecord is the at-rest form of a tenant's app credentials.
// Every sensitive field holds base64(nonce || ciphertext || tag).
type EncryptedCredentialRecord struct {
	ID                   string
	TenantID             string
	EncryptedAppID       string
	EncryptedAppSecret   string
	EncryptedRedirectURI string
	DisplayName          string
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CredentialSet is the decrypted view handed to the exchange client.
type CredentialSet struct {
	ID          string
	TenantID    string
	AppID       string
	AppSecret   string
	RedirectURI string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c CredentialSet) AppCredentials() AppCredentials {
	return AppCredentials{
		AppID:       c.AppID,
		AppSecret:   c.AppSecret,
		RedirectURI: c.RedirectURI,
	}
}

type CredentialSetSummary struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r EncryptedCredentialRecord) Summary() CredentialSetSummary {
	return CredentialSetSummary{
		ID:          r.ID,
		TenantID:    r.TenantID,
		DisplayName: r.DisplayName,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type AppCredentials struct {
	AppID       string
	AppSecret   string
	RedirectURI string
}

type OAuthStateRecord struct {
	State     string
	TenantID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r OAuthStateRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

type SubAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token,omitempty"`
}

type ExternalAccount struct {
	TenantID           string
	AccessToken        string
	TokenType          string
	ExpiresAt          *time.Time
	ExternalUserID     string
	DisplayName        string
	SubAccounts        []SubAccount
	SecondaryAccountID string
	GrantedScopes      []string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a ExternalAccount) Expiring() bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.IsZero()
}

func (a ExternalAccount) SubAccount(id string) (SubAccount, bool) {
	id = strings.TrimSpace(id)
	for _, sub := range a.SubAccounts {
		if sub.ID == id {
			return sub, true
		}
	}
	return SubAccount{}, false
}

// ContentSource is one listable feed of an external account.
type ContentSource struct {
	ID          string
	Kind        ContentKind
	AccessToken string
}

// Sources returns the secondary account (media) first, then every sub-account (posts).
func (a ExternalAccount) Sources() []ContentSource {
	sources := make([]ContentSource, 0, len(a.SubAccounts)+1)
	if id := strings.TrimSpace(a.SecondaryAccountID); id != "" {
		sources = append(sources, ContentSource{ID: id, Kind: ContentKindMedia, AccessToken: a.AccessToken})
	}
	for _, sub := range a.SubAccounts {
		token := sub.AccessToken
		if strings.TrimSpace(token) == "" {
			token = a.AccessToken
		}
		sources = append(sources, ContentSource{ID: sub.ID, Kind: ContentKindPost, AccessToken: token})
	}
	return sources
}

func (a ExternalAccount) Source(id string) (ContentSource, bool) {
	id = strings.TrimSpace(id)
	for _, source := range a.Sources() {
		if source.ID == id {
			return source, true
		}
	}
	return ContentSource{}, false
}

type ChildMedia struct {
	ID           string `json:"id"`
	MediaType    string `json:"media_type,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type ContentItem struct {
	ExternalID   string       `json:"external_id"`
	TenantID     string       `json:"tenant_id"`
	SourceID     string       `json:"source_id"`
	Kind         ContentKind  `json:"kind"`
	MediaType    string       `json:"media_type,omitempty"`
	Caption      *string      `json:"caption,omitempty"`
	MediaURL     string       `json:"media_url,omitempty"`
	ThumbnailURL string       `json:"thumbnail_url,omitempty"`
	Permalink    string       `json:"permalink,omitempty"`
	PublishedAt  time.Time    `json:"published_at"`
	Children     []ChildMedia `json:"children,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	FetchedAt    time.Time    `json:"fetched_at"`
}

type ContentPage struct {
	Items      []ContentItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

type ItemFailure struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

type SyncOutcome struct {
	TenantID   string        `json:"tenant_id"`
	SourceID   string        `json:"source_id"`
	Stored     int           `json:"stored"`
	Failed     int           `json:"failed"`
	Pages      int           `json:"pages"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
	Failures   []ItemFailure `json:"failures,omitempty"`
}

func (o *SyncOutcome) merge(other SyncOutcome) {
	o.Stored += other.Stored
	o.Failed += other.Failed
	o.Pages += other.Pages
	o.NextCursor = other.NextCursor
	o.HasMore = other.HasMore
	o.Failures = append(o.Failures, other.Failures...)
}

type RefreshOutcome struct {
	TenantID  string     `json:"tenant_id"`
	Refreshed bool       `json:"refreshed"`
	Reason    string     `json:"reason,omitempty"`
	NewExpiry *time.Time `json:"new_expiry,omitempty"`
}

type SourceSyncFailure struct {
	SourceID string       `json:"source_id"`
	Reason   string       `json:"reason"`
	Class    FailureClass `json:"class"`
}

type TenantSyncReport struct {
	TenantID       string              `json:"tenant_id"`
	Refresh        RefreshOutcome      `json:"refresh"`
	Sources        []SyncOutcome       `json:"sources"`
	SourceFailures []SourceSyncFailure `json:"source_failures,omitempty"`
}

func (r TenantSyncReport) Stored() int {
	total := 0
	for _, source := range r.Sources {
		total += source.Stored
	}
	return total
}

func (r TenantSyncReport) HasMore() bool {
	for _, source := range r.Sources {
		if source.HasMore {
			return true
		}
	}
	return false
}

type TenantFailure struct {
	TenantID string       `json:"tenant_id"`
	Reason   string       `json:"reason"`
	Class    FailureClass `json:"class"`
}

type SweepReport struct {
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Tenants      []TenantSyncReport `json:"tenants"`
	Failures     []TenantFailure    `json:"failures,omitempty"`
	Cancelled    bool               `json:"cancelled"`
	PurgedStates int                `json:"purged_states"`
}

func (r SweepReport) Stored() int {
	total := 0
	for _, tenant := range r.Tenants {
		total += tenant.Stored()
	}
	return total
}

type StoreCredentialsRequest struct {
	TenantID    string `json:"tenant_id" validate:"required,max=128"`
	AppID       string `json:"app_id" validate:"required,min=5,max=64"`
	AppSecret   string `json:"app_secret" validate:"required,min=16,max=256"`
	RedirectURI string `json:"redirect_uri" validate:"required,max=2048,redirect_uri"`
	DisplayName string `json:"display_name" validate:"max=120"`
}

type CredentialSetPatch struct {
	AppID       *string `json:"app_id,omitempty" validate:"omitempty,min=5,max=64"`
	AppSecret   *string `json:"app_secret,omitempty" validate:"omitempty,min=16,max=256"`
	RedirectURI *string `json:"redirect_uri,omitempty" validate:"omitempty,max=2048,redirect_uri"`
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=120"`
}

func (p CredentialSetPatch) Empty() bool {
	return p.AppID == nil && p.AppSecret == nil && p.RedirectURI == nil && p.DisplayName == nil
}

type BeginAuthResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type CompleteAuthRequest struct {
	TenantID string
	Code     string
	State    string
}

type CompleteAuthResponse struct {
	Account ExternalAccount
}

type ListContentRequest struct {
	TenantID string
	Cursor   string
	Limit    int
}

type TriggerSyncResult struct {
	StoredCount int              `json:"stored_count"`
	HasMore     bool             `json:"has_more"`
	Report      TenantSyncReport `json:"report"`
}

type ContentQuery struct {
	TenantID string
	SourceID string
	Offset   int
	Limit    int
}
