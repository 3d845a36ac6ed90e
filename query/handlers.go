package query

import (
	"context"

	"github.com/goliatone/go-social-sync/core"
)

type CredentialReader interface {
	GetActiveCredentials(ctx context.Context, tenantID string) (core.CredentialSet, error)
	ListCredentialSets(ctx context.Context, tenantID string) ([]core.CredentialSetSummary, error)
}

type AccountReader interface {
	GetExternalAccount(ctx context.Context, tenantID string) (core.ExternalAccount, error)
}

type ContentReader interface {
	ListContent(ctx context.Context, req core.ListContentRequest) (core.ContentPage, error)
}

// GetActiveCredentialsQuery returns decrypted secrets. Callers that render
// results must strip them.
type GetActiveCredentialsQuery struct {
	reader CredentialReader
}

func NewGetActiveCredentialsQuery(reader CredentialReader) *GetActiveCredentialsQuery {
	return &GetActiveCredentialsQuery{reader: reader}
}

func (q *GetActiveCredentialsQuery) Query(ctx context.Context, msg GetActiveCredentialsMessage) (core.CredentialSet, error) {
	if q == nil || q.reader == nil {
		return core.CredentialSet{}, queryDependencyError("query: credential reader is required")
	}
	return q.reader.GetActiveCredentials(ctx, msg.TenantID)
}

type ListCredentialSetsQuery struct {
	reader CredentialReader
}

func NewListCredentialSetsQuery(reader CredentialReader) *ListCredentialSetsQuery {
	return &ListCredentialSetsQuery{reader: reader}
}

func (q *ListCredentialSetsQuery) Query(ctx context.Context, msg ListCredentialSetsMessage) ([]core.CredentialSetSummary, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: credential reader is required")
	}
	return q.reader.ListCredentialSets(ctx, msg.TenantID)
}

type GetExternalAccountQuery struct {
	reader AccountReader
}

func NewGetExternalAccountQuery(reader AccountReader) *GetExternalAccountQuery {
	return &GetExternalAccountQuery{reader: reader}
}

func (q *GetExternalAccountQuery) Query(ctx context.Context, msg GetExternalAccountMessage) (core.ExternalAccount, error) {
	if q == nil || q.reader == nil {
		return core.ExternalAccount{}, queryDependencyError("query: account reader is required")
	}
	return q.reader.GetExternalAccount(ctx, msg.TenantID)
}

type ListContentQuery struct {
	reader ContentReader
}

func NewListContentQuery(reader ContentReader) *ListContentQuery {
	return &ListContentQuery{reader: reader}
}

func (q *ListContentQuery) Query(ctx context.Context, msg ListContentMessage) (core.ContentPage, error) {
	if q == nil || q.reader == nil {
		return core.ContentPage{}, queryDependencyError("query: content reader is required")
	}
	return q.reader.ListContent(ctx, msg.Request)
}
