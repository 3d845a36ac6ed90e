package query

import (
	"strings"

	"github.com/goliatone/go-social-sync/core"
)

const (
	TypeGetActiveCredentials = "socialsync.query.credentials.active"
	TypeListCredentialSets   = "socialsync.query.credentials.list"
	TypeGetExternalAccount   = "socialsync.query.account.get"
	TypeListContent          = "socialsync.query.content.list"
)

type GetActiveCredentialsMessage struct {
	TenantID string
}

func (GetActiveCredentialsMessage) Type() string { return TypeGetActiveCredentials }

func (m GetActiveCredentialsMessage) Validate() error {
	return requireTenant(m.TenantID)
}

type ListCredentialSetsMessage struct {
	TenantID string
}

func (ListCredentialSetsMessage) Type() string { return TypeListCredentialSets }

func (m ListCredentialSetsMessage) Validate() error {
	return requireTenant(m.TenantID)
}

type GetExternalAccountMessage struct {
	TenantID string
}

func (GetExternalAccountMessage) Type() string { return TypeGetExternalAccount }

func (m GetExternalAccountMessage) Validate() error {
	return requireTenant(m.TenantID)
}

type ListContentMessage struct {
	Request core.ListContentRequest
}

func (ListContentMessage) Type() string { return TypeListContent }

func (m ListContentMessage) Validate() error {
	if err := requireTenant(m.Request.TenantID); err != nil {
		return err
	}
	if m.Request.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	return nil
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}
