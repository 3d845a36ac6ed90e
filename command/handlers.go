package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-sync/core"
)

// MutatingService is the write side of core.ConnectorService.
type MutatingService interface {
	StoreCredentials(ctx context.Context, req core.StoreCredentialsRequest) (string, error)
	UpdateCredentialSet(ctx context.Context, credentialID string, patch core.CredentialSetPatch) (core.CredentialSetSummary, error)
	DeleteCredentialSet(ctx context.Context, credentialID string) error
	BeginAuth(ctx context.Context, tenantID string) (core.BeginAuthResponse, error)
	CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error)
	Disconnect(ctx context.Context, tenantID string) error
	TriggerSync(ctx context.Context, tenantID string) (core.TriggerSyncResult, error)
	Backfill(ctx context.Context, tenantID string, sourceID string, limit int, maxPages int) (core.SyncOutcome, error)
	RefreshIfNeeded(ctx context.Context, tenantID string) (core.RefreshOutcome, error)
}

// StoreCredentialsCommand stores the new credential id in the result collector.
type StoreCredentialsCommand struct {
	service MutatingService
}

func NewStoreCredentialsCommand(service MutatingService) *StoreCredentialsCommand {
	return &StoreCredentialsCommand{service: service}
}

func (c *StoreCredentialsCommand) Execute(ctx context.Context, msg StoreCredentialsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credentials service is required")
	}
	id, err := c.service.StoreCredentials(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, id)
	return nil
}

type UpdateCredentialSetCommand struct {
	service MutatingService
}

func NewUpdateCredentialSetCommand(service MutatingService) *UpdateCredentialSetCommand {
	return &UpdateCredentialSetCommand{service: service}
}

func (c *UpdateCredentialSetCommand) Execute(ctx context.Context, msg UpdateCredentialSetMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credentials service is required")
	}
	out, err := c.service.UpdateCredentialSet(ctx, msg.CredentialID, msg.Patch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteCredentialSetCommand struct {
	service MutatingService
}

func NewDeleteCredentialSetCommand(service MutatingService) *DeleteCredentialSetCommand {
	return &DeleteCredentialSetCommand{service: service}
}

func (c *DeleteCredentialSetCommand) Execute(ctx context.Context, msg DeleteCredentialSetMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credentials service is required")
	}
	return c.service.DeleteCredentialSet(ctx, msg.CredentialID)
}

type BeginAuthCommand struct {
	service MutatingService
}

func NewBeginAuthCommand(service MutatingService) *BeginAuthCommand {
	return &BeginAuthCommand{service: service}
}

func (c *BeginAuthCommand) Execute(ctx context.Context, msg BeginAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	out, err := c.service.BeginAuth(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthCommand struct {
	service MutatingService
}

func NewCompleteAuthCommand(service MutatingService) *CompleteAuthCommand {
	return &CompleteAuthCommand{service: service}
}

func (c *CompleteAuthCommand) Execute(ctx context.Context, msg CompleteAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	out, err := c.service.CompleteAuth(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connection service is required")
	}
	return c.service.Disconnect(ctx, msg.TenantID)
}

type TriggerSyncCommand struct {
	service MutatingService
}

func NewTriggerSyncCommand(service MutatingService) *TriggerSyncCommand {
	return &TriggerSyncCommand{service: service}
}

func (c *TriggerSyncCommand) Execute(ctx context.Context, msg TriggerSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.TriggerSync(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BackfillCommand struct {
	service MutatingService
}

func NewBackfillCommand(service MutatingService) *BackfillCommand {
	return &BackfillCommand{service: service}
}

func (c *BackfillCommand) Execute(ctx context.Context, msg BackfillMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.Backfill(ctx, msg.TenantID, msg.SourceID, msg.Limit, msg.MaxPages)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshTokenCommand struct {
	service MutatingService
}

func NewRefreshTokenCommand(service MutatingService) *RefreshTokenCommand {
	return &RefreshTokenCommand{service: service}
}

func (c *RefreshTokenCommand) Execute(ctx context.Context, msg RefreshTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.RefreshIfNeeded(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
