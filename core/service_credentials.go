package core

import (
	"context"
	"time"
)

// StoreCredentials encrypts and activates a new credential set, returning its id.
func (s *Service) StoreCredentials(ctx context.Context, req StoreCredentialsRequest) (id string, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "store_credentials", err, map[string]any{
			"tenant_id":     req.TenantID,
			"credential_id": id,
		})
	}()

	summary, err := s.vault.StoreCredentialSet(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return summary.ID, nil
}

func (s *Service) GetActiveCredentials(ctx context.Context, tenantID string) (CredentialSet, error) {
	set, err := s.vault.GetActiveCredentialSet(ctx, tenantID)
	if err != nil {
		return CredentialSet{}, s.mapError(err)
	}
	return set, nil
}

func (s *Service) ListCredentialSets(ctx context.Context, tenantID string) ([]CredentialSetSummary, error) {
	summaries, err := s.vault.ListCredentialSets(ctx, tenantID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return summaries, nil
}

func (s *Service) UpdateCredentialSet(ctx context.Context, credentialID string, patch CredentialSetPatch) (summary CredentialSetSummary, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "update_credentials", err, map[string]any{
			"credential_id": credentialID,
			"tenant_id":     summary.TenantID,
		})
	}()

	summary, err = s.vault.UpdateCredentialSet(ctx, credentialID, patch)
	if err != nil {
		return CredentialSetSummary{}, s.mapError(err)
	}
	return summary, nil
}

func (s *Service) DeleteCredentialSet(ctx context.Context, credentialID string) (err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_credentials", err, map[string]any{
			"credential_id": credentialID,
		})
	}()

	return s.mapError(s.vault.DeleteCredentialSet(ctx, credentialID))
}
