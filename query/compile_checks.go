package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-sync/core"
)

var (
	_ gocmd.Querier[GetActiveCredentialsMessage, core.CredentialSet]        = (*GetActiveCredentialsQuery)(nil)
	_ gocmd.Querier[ListCredentialSetsMessage, []core.CredentialSetSummary] = (*ListCredentialSetsQuery)(nil)
	_ gocmd.Querier[GetExternalAccountMessage, core.ExternalAccount]        = (*GetExternalAccountQuery)(nil)
	_ gocmd.Querier[ListContentMessage, core.ContentPage]                   = (*ListContentQuery)(nil)

	_ CredentialReader = (core.ConnectorService)(nil)
	_ AccountReader    = (core.ConnectorService)(nil)
	_ ContentReader    = (core.ConnectorService)(nil)
)
