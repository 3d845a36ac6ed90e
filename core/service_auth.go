package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// BeginAuth builds the provider authorization URL for the tenant's active app
// credentials and a fresh state.
func (s *Service) BeginAuth(ctx context.Context, tenantID string) (resp BeginAuthResponse, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_auth", err, map[string]any{"tenant_id": tenantID})
	}()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return BeginAuthResponse{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	creds, err := s.vault.GetActiveCredentialSet(ctx, tenantID)
	if err != nil {
		return BeginAuthResponse{}, s.mapError(err)
	}
	state, err := s.CreateState(ctx, tenantID)
	if err != nil {
		return BeginAuthResponse{}, err
	}
	authURL, err := s.exchanger.BuildAuthorizationURL(creds.AppCredentials(), state, s.config.OAuth.Scopes)
	if err != nil {
		_ = s.CleanupState(ctx, state)
		return BeginAuthResponse{}, s.mapError(err)
	}
	return BeginAuthResponse{URL: authURL, State: state}, nil
}

// CompleteAuth consumes the callback state, exchanges the code, upgrades to a
// long-lived token, discovers sub-accounts and replaces the tenant's account.
func (s *Service) CompleteAuth(ctx context.Context, req CompleteAuthRequest) (resp CompleteAuthResponse, err error) {
	startedAt := time.Now()
	defer func() {
		fields := map[string]any{"tenant_id": req.TenantID}
		if err == nil {
			fields["external_user_id"] = resp.Account.ExternalUserID
			fields["sub_accounts"] = len(resp.Account.SubAccounts)
			fields["secondary_account_id"] = resp.Account.SecondaryAccountID
		}
		s.observeOperation(ctx, startedAt, "complete_auth", err, fields)
	}()

	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Code = strings.TrimSpace(req.Code)
	if req.TenantID == "" {
		return CompleteAuthResponse{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	if _, err = s.ValidateAndConsumeState(ctx, req.State, req.TenantID); err != nil {
		return CompleteAuthResponse{}, err
	}
	if req.Code == "" {
		return CompleteAuthResponse{}, NewFieldValidationError("code", "authorization code is required")
	}

	creds, err := s.vault.GetActiveCredentialSet(ctx, req.TenantID)
	if err != nil {
		return CompleteAuthResponse{}, s.mapError(err)
	}
	app := creds.AppCredentials()

	short, err := s.exchanger.ExchangeCode(ctx, app, req.Code)
	if err != nil {
		return CompleteAuthResponse{}, s.mapError(err)
	}
	long, err := s.exchanger.UpgradeToken(ctx, app, short.AccessToken)
	if err != nil {
		return CompleteAuthResponse{}, s.mapError(err)
	}
	identity, err := s.exchanger.FetchIdentity(ctx, long.AccessToken)
	if err != nil {
		return CompleteAuthResponse{}, s.mapError(err)
	}
	discovery, err := s.exchanger.DiscoverSubAccounts(ctx, long.AccessToken)
	if err != nil {
		return CompleteAuthResponse{}, s.mapError(err)
	}

	now := s.now()
	tokenType := long.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	account, err := s.accounts.Replace(ctx, ExternalAccount{
		TenantID:           req.TenantID,
		AccessToken:        long.AccessToken,
		TokenType:          tokenType,
		ExpiresAt:          long.ExpiresAt(now),
		ExternalUserID:     identity.ID,
		DisplayName:        identity.Name,
		SubAccounts:        append([]SubAccount(nil), discovery.SubAccounts...),
		SecondaryAccountID: discovery.SecondaryAccountID,
		GrantedScopes:      append([]string(nil), s.config.OAuth.Scopes...),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return CompleteAuthResponse{}, s.mapError(err)
	}
	return CompleteAuthResponse{Account: account}, nil
}

// Disconnect removes the tenant's external account and synced content. App
// credentials are kept.
func (s *Service) Disconnect(ctx context.Context, tenantID string) (err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, map[string]any{"tenant_id": tenantID})
	}()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return NewFieldValidationError("tenant_id", "tenant id is required")
	}
	if purger, ok := s.accounts.(TenantConnectionPurger); ok {
		return s.mapError(purger.PurgeTenantConnection(ctx, tenantID))
	}
	if _, err = s.content.DeleteByTenant(ctx, tenantID); err != nil {
		return s.mapError(err)
	}
	if err = s.accounts.Delete(ctx, tenantID); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) GetExternalAccount(ctx context.Context, tenantID string) (ExternalAccount, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ExternalAccount{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	account, err := s.accounts.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ExternalAccount{}, NewAccountNotConnectedError(tenantID)
		}
		return ExternalAccount{}, s.mapError(err)
	}
	return account, nil
}
