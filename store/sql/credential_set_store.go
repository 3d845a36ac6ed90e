package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-social-sync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CredentialSetStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialSetRecord]
}

func NewCredentialSetStore(db *bun.DB) (*CredentialSetStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialSetRecord](db, credentialSetHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential set repository wiring: %w", err)
		}
	}
	return &CredentialSetStore{db: db, repo: repo}, nil
}

// Activate deactivates the tenant's current set and inserts record as active
// inside one transaction. The partial unique index on (tenant_id) WHERE active
// rejects a concurrent second activation.
func (s *CredentialSetStore) Activate(ctx context.Context, in core.EncryptedCredentialRecord) (core.EncryptedCredentialRecord, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("sqlstore: credential set store is not configured")
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	now := time.Now().UTC()
	record := newCredentialSetRecord(in)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Active = true
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	var created core.EncryptedCredentialRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*credentialSetRecord)(nil)).
			Set("active = ?", false).
			Set("updated_at = ?", now).
			Where("tenant_id = ?", tenantID).
			Where("active = ?", true).
			Exec(ctx); err != nil {
			return err
		}
		inserted, err := s.repo.CreateTx(ctx, tx, record)
		if err != nil {
			return err
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.EncryptedCredentialRecord{}, err
	}
	return created, nil
}

func (s *CredentialSetStore) GetActive(ctx context.Context, tenantID string) (core.EncryptedCredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("sqlstore: credential set store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EncryptedCredentialRecord{}, err
	}
	if len(records) == 0 {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("%w: no active credential set for tenant %q", core.ErrRecordNotFound, tenantID)
	}
	return records[0].toDomain(), nil
}

func (s *CredentialSetStore) Get(ctx context.Context, id string) (core.EncryptedCredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("sqlstore: credential set store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(id)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EncryptedCredentialRecord{}, err
	}
	if len(records) == 0 {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("%w: credential set %q", core.ErrRecordNotFound, id)
	}
	return records[0].toDomain(), nil
}

func (s *CredentialSetStore) List(ctx context.Context, tenantID string) ([]core.EncryptedCredentialRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential set store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.EncryptedCredentialRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Update rewrites the encrypted fields and display name. The active flag is
// only changed through Activate.
func (s *CredentialSetStore) Update(ctx context.Context, in core.EncryptedCredentialRecord) (core.EncryptedCredentialRecord, error) {
	if s == nil || s.db == nil {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("sqlstore: credential set store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("sqlstore: credential set id is required")
	}
	updatedAt := in.UpdatedAt.UTC()
	if in.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	result, err := s.db.NewUpdate().
		Model((*credentialSetRecord)(nil)).
		Set("encrypted_app_id = ?", in.EncryptedAppID).
		Set("encrypted_app_secret = ?", in.EncryptedAppSecret).
		Set("encrypted_redirect_uri = ?", in.EncryptedRedirectURI).
		Set("display_name = ?", in.DisplayName).
		Set("updated_at = ?", updatedAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.EncryptedCredentialRecord{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.EncryptedCredentialRecord{}, fmt.Errorf("%w: credential set %q", core.ErrRecordNotFound, id)
	}
	return s.Get(ctx, id)
}

func (s *CredentialSetStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential set store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*credentialSetRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: credential set %q", core.ErrRecordNotFound, id)
	}
	return nil
}
