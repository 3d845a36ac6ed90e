package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-sync/core"
)

var (
	_ gocmd.Commander[StoreCredentialsMessage]    = (*StoreCredentialsCommand)(nil)
	_ gocmd.Commander[UpdateCredentialSetMessage] = (*UpdateCredentialSetCommand)(nil)
	_ gocmd.Commander[DeleteCredentialSetMessage] = (*DeleteCredentialSetCommand)(nil)
	_ gocmd.Commander[BeginAuthMessage]           = (*BeginAuthCommand)(nil)
	_ gocmd.Commander[CompleteAuthMessage]        = (*CompleteAuthCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]          = (*DisconnectCommand)(nil)
	_ gocmd.Commander[TriggerSyncMessage]         = (*TriggerSyncCommand)(nil)
	_ gocmd.Commander[BackfillMessage]            = (*BackfillCommand)(nil)
	_ gocmd.Commander[RefreshTokenMessage]        = (*RefreshTokenCommand)(nil)

	_ MutatingService = (core.ConnectorService)(nil)
)
