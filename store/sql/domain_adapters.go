package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-social-sync/core"
)

func newCredentialSetRecord(in core.EncryptedCredentialRecord) *credentialSetRecord {
	return &credentialSetRecord{
		ID:                   strings.TrimSpace(in.ID),
		TenantID:             strings.TrimSpace(in.TenantID),
		EncryptedAppID:       in.EncryptedAppID,
		EncryptedAppSecret:   in.EncryptedAppSecret,
		EncryptedRedirectURI: in.EncryptedRedirectURI,
		DisplayName:          in.DisplayName,
		Active:               in.Active,
		CreatedAt:            in.CreatedAt.UTC(),
		UpdatedAt:            in.UpdatedAt.UTC(),
	}
}

func (r *credentialSetRecord) toDomain() core.EncryptedCredentialRecord {
	if r == nil {
		return core.EncryptedCredentialRecord{}
	}
	return core.EncryptedCredentialRecord{
		ID:                   r.ID,
		TenantID:             r.TenantID,
		EncryptedAppID:       r.EncryptedAppID,
		EncryptedAppSecret:   r.EncryptedAppSecret,
		EncryptedRedirectURI: r.EncryptedRedirectURI,
		DisplayName:          r.DisplayName,
		Active:               r.Active,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

func (r *oauthStateRecord) toDomain() core.OAuthStateRecord {
	if r == nil {
		return core.OAuthStateRecord{}
	}
	return core.OAuthStateRecord{
		State:     r.State,
		TenantID:  r.TenantID,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
}

func newExternalAccountRecord(in core.ExternalAccount) *externalAccountRecord {
	record := &externalAccountRecord{
		TenantID:       strings.TrimSpace(in.TenantID),
		AccessToken:    in.AccessToken,
		TokenType:      in.TokenType,
		ExpiresAt:      copyTimePointer(in.ExpiresAt),
		ExternalUserID: in.ExternalUserID,
		DisplayName:    in.DisplayName,
		SubAccounts:    append([]core.SubAccount{}, in.SubAccounts...),
		GrantedScopes:  append([]string{}, in.GrantedScopes...),
		Version:        in.Version,
		CreatedAt:      in.CreatedAt.UTC(),
		UpdatedAt:      in.UpdatedAt.UTC(),
	}
	if secondary := strings.TrimSpace(in.SecondaryAccountID); secondary != "" {
		record.SecondaryAccountID = &secondary
	}
	return record
}

func (r *externalAccountRecord) toDomain() core.ExternalAccount {
	if r == nil {
		return core.ExternalAccount{}
	}
	account := core.ExternalAccount{
		TenantID:       r.TenantID,
		AccessToken:    r.AccessToken,
		TokenType:      r.TokenType,
		ExpiresAt:      copyTimePointer(r.ExpiresAt),
		ExternalUserID: r.ExternalUserID,
		DisplayName:    r.DisplayName,
		SubAccounts:    append([]core.SubAccount(nil), r.SubAccounts...),
		GrantedScopes:  append([]string(nil), r.GrantedScopes...),
		Version:        r.Version,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.SecondaryAccountID != nil {
		account.SecondaryAccountID = *r.SecondaryAccountID
	}
	return account
}

func newContentItemRecord(in core.ContentItem) *contentItemRecord {
	record := &contentItemRecord{
		ExternalID:   strings.TrimSpace(in.ExternalID),
		TenantID:     strings.TrimSpace(in.TenantID),
		SourceID:     strings.TrimSpace(in.SourceID),
		Kind:         string(in.Kind),
		MediaType:    in.MediaType,
		MediaURL:     in.MediaURL,
		ThumbnailURL: in.ThumbnailURL,
		Permalink:    in.Permalink,
		Children:     append([]core.ChildMedia{}, in.Children...),
		CreatedAt:    in.CreatedAt.UTC(),
		FetchedAt:    in.FetchedAt.UTC(),
	}
	if in.Caption != nil {
		caption := *in.Caption
		record.Caption = &caption
	}
	if !in.PublishedAt.IsZero() {
		published := in.PublishedAt.UTC()
		record.PublishedAt = &published
	}
	return record
}

func (r *contentItemRecord) toDomain() core.ContentItem {
	if r == nil {
		return core.ContentItem{}
	}
	item := core.ContentItem{
		ExternalID:   r.ExternalID,
		TenantID:     r.TenantID,
		SourceID:     r.SourceID,
		Kind:         core.ContentKind(r.Kind),
		MediaType:    r.MediaType,
		MediaURL:     r.MediaURL,
		ThumbnailURL: r.ThumbnailURL,
		Permalink:    r.Permalink,
		CreatedAt:    r.CreatedAt.UTC(),
		FetchedAt:    r.FetchedAt.UTC(),
	}
	if len(r.Children) > 0 {
		item.Children = append([]core.ChildMedia(nil), r.Children...)
	}
	if r.Caption != nil {
		caption := *r.Caption
		item.Caption = &caption
	}
	if r.PublishedAt != nil {
		item.PublishedAt = r.PublishedAt.UTC()
	}
	return item
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil || input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}
