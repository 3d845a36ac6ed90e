package socialsync

import "github.com/goliatone/go-social-sync/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ConnectorService = core.ConnectorService

type CredentialSet = core.CredentialSet
type CredentialSetPatch = core.CredentialSetPatch
type ExternalAccount = core.ExternalAccount
type ContentItem = core.ContentItem
type ContentPage = core.ContentPage

type StoreCredentialsRequest = core.StoreCredentialsRequest
type BeginAuthResponse = core.BeginAuthResponse
type CompleteAuthRequest = core.CompleteAuthRequest
type CompleteAuthResponse = core.CompleteAuthResponse
type ListContentRequest = core.ListContentRequest
type TriggerSyncResult = core.TriggerSyncResult

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorMapper          = core.WithErrorMapper
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithStoreProvider        = core.WithStoreProvider
	WithCipher               = core.WithCipher
	WithCredentialSetStore   = core.WithCredentialSetStore
	WithOAuthStateStore      = core.WithOAuthStateStore
	WithExternalAccountStore = core.WithExternalAccountStore
	WithContentItemStore     = core.WithContentItemStore
	WithTokenExchanger       = core.WithTokenExchanger
	WithContentLister        = core.WithContentLister
	WithTenantLocker         = core.WithTenantLocker
	WithClock                = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
