package sqlstore

import "github.com/goliatone/go-social-sync/core"

var (
	_ core.CredentialSetStore     = (*CredentialSetStore)(nil)
	_ core.OAuthStateStore        = (*OAuthStateStore)(nil)
	_ core.ExternalAccountStore   = (*ExternalAccountStore)(nil)
	_ core.ContentItemStore       = (*ContentItemStore)(nil)
	_ core.TenantConnectionPurger = (*ExternalAccountStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.ExpiredStatePurger     = (*OAuthStateStore)(nil)
)
