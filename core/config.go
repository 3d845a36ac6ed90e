package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultStateTTL          = 10 * time.Minute
	DefaultRefreshThreshold  = 7 * 24 * time.Hour
	DefaultRefreshLockTTL    = 30 * time.Second
	DefaultPageSize          = 25
	DefaultSweepPageSize     = 50
	DefaultMaxPageSize       = 100
	DefaultTenantConcurrency = 4
	DefaultSourceConcurrency = 2
	DefaultSyncInterval      = 15 * time.Minute
	DefaultMaxBackfillPages  = 20
	DefaultGraphBaseURL      = "https://graph.facebook.com/v23.0"
	DefaultAuthorizeURL      = "https://www.facebook.com/v23.0/dialog/oauth"
	DefaultRequestTimeout    = 30 * time.Second
)

var DefaultScopes = []string{
	"pages_show_list",
	"pages_read_engagement",
	"business_management",
	"instagram_basic",
}

type OAuthConfig struct {
	StateTTL     time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	Scopes       []string      `koanf:"scopes" mapstructure:"scopes"`
	AuthorizeURL string        `koanf:"authorize_url" mapstructure:"authorize_url"`
}

type RefreshConfig struct {
	Threshold time.Duration `koanf:"threshold" mapstructure:"threshold"`
	LockTTL   time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type SyncConfig struct {
	PageSize          int           `koanf:"page_size" mapstructure:"page_size"`
	SweepPageSize     int           `koanf:"sweep_page_size" mapstructure:"sweep_page_size"`
	MaxPageSize       int           `koanf:"max_page_size" mapstructure:"max_page_size"`
	TenantConcurrency int           `koanf:"tenant_concurrency" mapstructure:"tenant_concurrency"`
	SourceConcurrency int           `koanf:"source_concurrency" mapstructure:"source_concurrency"`
	Interval          time.Duration `koanf:"interval" mapstructure:"interval"`
	MaxBackfillPages  int           `koanf:"max_backfill_pages" mapstructure:"max_backfill_pages"`
}

type GraphConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig   `koanf:"oauth" mapstructure:"oauth"`
	Refresh     RefreshConfig `koanf:"refresh" mapstructure:"refresh"`
	Sync        SyncConfig    `koanf:"sync" mapstructure:"sync"`
	Graph       GraphConfig   `koanf:"graph" mapstructure:"graph"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "socialsync",
		OAuth: OAuthConfig{
			StateTTL:     DefaultStateTTL,
			Scopes:       append([]string(nil), DefaultScopes...),
			AuthorizeURL: DefaultAuthorizeURL,
		},
		Refresh: RefreshConfig{
			Threshold: DefaultRefreshThreshold,
			LockTTL:   DefaultRefreshLockTTL,
		},
		Sync: SyncConfig{
			PageSize:          DefaultPageSize,
			SweepPageSize:     DefaultSweepPageSize,
			MaxPageSize:       DefaultMaxPageSize,
			TenantConcurrency: DefaultTenantConcurrency,
			SourceConcurrency: DefaultSourceConcurrency,
			Interval:          DefaultSyncInterval,
			MaxBackfillPages:  DefaultMaxBackfillPages,
		},
		Graph: GraphConfig{
			BaseURL:        DefaultGraphBaseURL,
			RequestTimeout: DefaultRequestTimeout,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.StateTTL <= 0 {
		return fmt.Errorf("core: oauth.state_ttl must be positive")
	}
	if err := validateAbsoluteURL("oauth.authorize_url", c.OAuth.AuthorizeURL); err != nil {
		return err
	}
	if c.Refresh.Threshold <= 0 {
		return fmt.Errorf("core: refresh.threshold must be positive")
	}
	if c.Refresh.LockTTL <= 0 {
		return fmt.Errorf("core: refresh.lock_ttl must be positive")
	}
	if c.Sync.MaxPageSize < 1 {
		return fmt.Errorf("core: sync.max_page_size must be at least 1")
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > c.Sync.MaxPageSize {
		return fmt.Errorf("core: sync.page_size must be between 1 and %d", c.Sync.MaxPageSize)
	}
	if c.Sync.SweepPageSize < 1 || c.Sync.SweepPageSize > c.Sync.MaxPageSize {
		return fmt.Errorf("core: sync.sweep_page_size must be between 1 and %d", c.Sync.MaxPageSize)
	}
	if c.Sync.TenantConcurrency < 1 || c.Sync.SourceConcurrency < 1 {
		return fmt.Errorf("core: sync concurrency must be at least 1")
	}
	if err := validateAbsoluteURL("graph.base_url", c.Graph.BaseURL); err != nil {
		return err
	}
	if c.Graph.RequestTimeout <= 0 {
		return fmt.Errorf("core: graph.request_timeout must be positive")
	}
	return nil
}

func validateAbsoluteURL(field string, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: %s must be an absolute url", field)
	}
	return nil
}
