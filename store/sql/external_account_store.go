package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-sync/core"
	"github.com/uptrace/bun"
)

type ExternalAccountStore struct {
	db *bun.DB
}

func NewExternalAccountStore(db *bun.DB) (*ExternalAccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ExternalAccountStore{db: db}, nil
}

func (s *ExternalAccountStore) Get(ctx context.Context, tenantID string) (core.ExternalAccount, error) {
	if s == nil || s.db == nil {
		return core.ExternalAccount{}, fmt.Errorf("sqlstore: external account store is not configured")
	}
	record, err := findExternalAccount(ctx, s.db, strings.TrimSpace(tenantID))
	if err != nil {
		return core.ExternalAccount{}, err
	}
	return record.toDomain(), nil
}

// Replace swaps the tenant's account for in. The version continues from the
// previous row so a refresh that read the old row cannot overwrite the new one.
func (s *ExternalAccountStore) Replace(ctx context.Context, in core.ExternalAccount) (core.ExternalAccount, error) {
	if s == nil || s.db == nil {
		return core.ExternalAccount{}, fmt.Errorf("sqlstore: external account store is not configured")
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		return core.ExternalAccount{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	now := time.Now().UTC()
	record := newExternalAccountRecord(in)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var previous int64
		if err := tx.NewSelect().
			Model((*externalAccountRecord)(nil)).
			ColumnExpr("COALESCE(MAX(version), 0)").
			Where("?TableAlias.tenant_id = ?", tenantID).
			Scan(ctx, &previous); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*externalAccountRecord)(nil)).
			Where("tenant_id = ?", tenantID).
			Exec(ctx); err != nil {
			return err
		}
		record.Version = previous + 1
		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return core.ExternalAccount{}, err
	}
	return record.toDomain(), nil
}

// UpdateToken stores a refreshed token only when the stored version still
// matches ExpectedVersion.
func (s *ExternalAccountStore) UpdateToken(ctx context.Context, in core.UpdateTokenInput) (core.ExternalAccount, error) {
	if s == nil || s.db == nil {
		return core.ExternalAccount{}, fmt.Errorf("sqlstore: external account store is not configured")
	}
	tenantID := strings.TrimSpace(in.TenantID)
	var updated *externalAccountRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model((*externalAccountRecord)(nil)).
			Set("access_token = ?", in.AccessToken).
			Set("expires_at = ?", copyTimePointer(in.ExpiresAt)).
			Set("version = version + 1").
			Set("updated_at = ?", time.Now().UTC()).
			Where("tenant_id = ?", tenantID).
			Where("version = ?", in.ExpectedVersion).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			if _, findErr := findExternalAccount(ctx, tx, tenantID); findErr != nil {
				return findErr
			}
			return fmt.Errorf("%w: tenant %q", core.ErrAccountVersionConflict, tenantID)
		}
		updated, err = findExternalAccount(ctx, tx, tenantID)
		return err
	})
	if err != nil {
		return core.ExternalAccount{}, err
	}
	return updated.toDomain(), nil
}

func (s *ExternalAccountStore) Delete(ctx context.Context, tenantID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: external account store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*externalAccountRecord)(nil)).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: external account for tenant %q", core.ErrRecordNotFound, tenantID)
	}
	return nil
}

func (s *ExternalAccountStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: external account store is not configured")
	}
	var tenantIDs []string
	if err := s.db.NewSelect().
		Model((*externalAccountRecord)(nil)).
		Column("tenant_id").
		OrderExpr("?TableAlias.tenant_id ASC").
		Scan(ctx, &tenantIDs); err != nil {
		return nil, err
	}
	return tenantIDs, nil
}

// PurgeTenantConnection deletes the tenant's content and account together.
// Credential sets are untouched.
func (s *ExternalAccountStore) PurgeTenantConnection(ctx context.Context, tenantID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: external account store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*contentItemRecord)(nil)).
			Where("tenant_id = ?", tenantID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*externalAccountRecord)(nil)).
			Where("tenant_id = ?", tenantID).
			Exec(ctx)
		return err
	})
}

func findExternalAccount(ctx context.Context, db bun.IDB, tenantID string) (*externalAccountRecord, error) {
	record := &externalAccountRecord{}
	if err := db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Limit(1).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: external account for tenant %q", core.ErrRecordNotFound, tenantID)
		}
		return nil, err
	}
	return record, nil
}
