package command

import (
	"strings"

	"github.com/goliatone/go-social-sync/core"
)

const (
	TypeStoreCredentials    = "socialsync.command.credentials.store"
	TypeUpdateCredentialSet = "socialsync.command.credentials.update"
	TypeDeleteCredentialSet = "socialsync.command.credentials.delete"
	TypeBeginAuth           = "socialsync.command.auth.begin"
	TypeCompleteAuth        = "socialsync.command.auth.complete"
	TypeDisconnect          = "socialsync.command.connection.disconnect"
	TypeTriggerSync         = "socialsync.command.sync.trigger"
	TypeBackfill            = "socialsync.command.sync.backfill"
	TypeRefreshToken        = "socialsync.command.token.refresh"
)

// Field level rules for credentials live in the vault; messages only check
// what routing needs.

type StoreCredentialsMessage struct {
	Request core.StoreCredentialsRequest
}

func (StoreCredentialsMessage) Type() string { return TypeStoreCredentials }

func (m StoreCredentialsMessage) Validate() error {
	return requireTenant(m.Request.TenantID)
}

type UpdateCredentialSetMessage struct {
	CredentialID string
	Patch        core.CredentialSetPatch
}

func (UpdateCredentialSetMessage) Type() string { return TypeUpdateCredentialSet }

func (m UpdateCredentialSetMessage) Validate() error {
	if strings.TrimSpace(m.CredentialID) == "" {
		return commandValidationError("credential_id", "credential id is required")
	}
	if m.Patch.Empty() {
		return commandValidationError("patch", "at least one field must be supplied")
	}
	return nil
}

type DeleteCredentialSetMessage struct {
	CredentialID string
}

func (DeleteCredentialSetMessage) Type() string { return TypeDeleteCredentialSet }

func (m DeleteCredentialSetMessage) Validate() error {
	if strings.TrimSpace(m.CredentialID) == "" {
		return commandValidationError("credential_id", "credential id is required")
	}
	return nil
}

type BeginAuthMessage struct {
	TenantID string
}

func (BeginAuthMessage) Type() string { return TypeBeginAuth }

func (m BeginAuthMessage) Validate() error {
	return requireTenant(m.TenantID)
}

type CompleteAuthMessage struct {
	Request core.CompleteAuthRequest
}

func (CompleteAuthMessage) Type() string { return TypeCompleteAuth }

func (m CompleteAuthMessage) Validate() error {
	if err := requireTenant(m.Request.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return commandValidationError("state", "state is required")
	}
	return nil
}

type DisconnectMessage struct {
	TenantID string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return requireTenant(m.TenantID)
}

type TriggerSyncMessage struct {
	TenantID string
}

func (TriggerSyncMessage) Type() string { return TypeTriggerSync }

func (m TriggerSyncMessage) Validate() error {
	return requireTenant(m.TenantID)
}

// BackfillMessage drains a source. Zero MaxPages falls back to the configured cap.
type BackfillMessage struct {
	TenantID string
	SourceID string
	Limit    int
	MaxPages int
}

func (BackfillMessage) Type() string { return TypeBackfill }

func (m BackfillMessage) Validate() error {
	if err := requireTenant(m.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(m.SourceID) == "" {
		return commandValidationError("source_id", "source id is required")
	}
	if m.Limit < 0 {
		return commandValidationError("limit", "limit must not be negative")
	}
	if m.MaxPages < 0 {
		return commandValidationError("max_pages", "max pages must not be negative")
	}
	return nil
}

type RefreshTokenMessage struct {
	TenantID string
}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (m RefreshTokenMessage) Validate() error {
	return requireTenant(m.TenantID)
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}
