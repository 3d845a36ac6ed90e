package sqlstore

import (
	"time"

	"github.com/goliatone/go-social-sync/core"
	"github.com/uptrace/bun"
)

type credentialSetRecord struct {
	bun.BaseModel `bun:"table:social_credential_sets,alias:scs"`

	ID                   string    `bun:"id,pk"`
	TenantID             string    `bun:"tenant_id,notnull"`
	EncryptedAppID       string    `bun:"encrypted_app_id,notnull"`
	EncryptedAppSecret   string    `bun:"encrypted_app_secret,notnull"`
	EncryptedRedirectURI string    `bun:"encrypted_redirect_uri,notnull"`
	DisplayName          string    `bun:"display_name,notnull"`
	Active               bool      `bun:"active,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type oauthStateRecord struct {
	bun.BaseModel `bun:"table:social_oauth_states,alias:sos"`

	State     string    `bun:"state,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

type externalAccountRecord struct {
	bun.BaseModel `bun:"table:social_external_accounts,alias:sea"`

	TenantID           string            `bun:"tenant_id,pk"`
	AccessToken        string            `bun:"access_token,notnull"`
	TokenType          string            `bun:"token_type,notnull"`
	ExpiresAt          *time.Time        `bun:"expires_at,nullzero"`
	ExternalUserID     string            `bun:"external_user_id,notnull"`
	DisplayName        string            `bun:"display_name,notnull"`
	SubAccounts        []core.SubAccount `bun:"sub_accounts,type:jsonb,notnull"`
	SecondaryAccountID *string           `bun:"secondary_account_id,nullzero"`
	GrantedScopes      []string          `bun:"granted_scopes,type:jsonb,notnull"`
	Version            int64             `bun:"version,notnull"`
	CreatedAt          time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type contentItemRecord struct {
	bun.BaseModel `bun:"table:social_content_items,alias:sci"`

	ExternalID   string            `bun:"external_id,pk"`
	TenantID     string            `bun:"tenant_id,notnull"`
	SourceID     string            `bun:"source_id,notnull"`
	Kind         string            `bun:"kind,notnull"`
	MediaType    string            `bun:"media_type,notnull"`
	Caption      *string           `bun:"caption"`
	MediaURL     string            `bun:"media_url,notnull"`
	ThumbnailURL string            `bun:"thumbnail_url,notnull"`
	Permalink    string            `bun:"permalink,notnull"`
	PublishedAt  *time.Time        `bun:"published_at,nullzero"`
	Children     []core.ChildMedia `bun:"children,type:jsonb,notnull"`
	CreatedAt    time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	FetchedAt    time.Time         `bun:"fetched_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:social_rate_limit_state,alias:srl"`

	ID                string         `bun:"id,pk"`
	ProviderID        string         `bun:"provider_id,notnull"`
	ScopeType         string         `bun:"scope_type,notnull"`
	ScopeID           string         `bun:"scope_id,notnull"`
	BucketKey         string         `bun:"bucket_key,notnull"`
	UsagePercent      int            `bun:"usage_percent,notnull"`
	RetryAfterSeconds *int           `bun:"retry_after_seconds"`
	ThrottledUntil    *time.Time     `bun:"throttled_until,nullzero"`
	LastStatus        int            `bun:"last_status,notnull"`
	Attempts          int            `bun:"attempts,notnull"`
	Metadata          map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
