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

type ContentItemStore struct {
	db *bun.DB
}

func NewContentItemStore(db *bun.DB) (*ContentItemStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ContentItemStore{db: db}, nil
}

// Upsert inserts the item or refreshes its mutable fields. An external id
// owned by another tenant is left alone and reported as ErrContentOwnership.
func (s *ContentItemStore) Upsert(ctx context.Context, in core.ContentItem) (core.ContentItem, error) {
	if s == nil || s.db == nil {
		return core.ContentItem{}, fmt.Errorf("sqlstore: content item store is not configured")
	}
	record := newContentItemRecord(in)
	if record.ExternalID == "" {
		return core.ContentItem{}, fmt.Errorf("sqlstore: external id is required")
	}
	if record.TenantID == "" {
		return core.ContentItem{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	now := time.Now().UTC()
	if record.FetchedAt.IsZero() {
		record.FetchedAt = now
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &contentItemRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.external_id = ?", record.ExternalID).
			Limit(1).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if record.CreatedAt.IsZero() {
				record.CreatedAt = now
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		case err != nil:
			return err
		}

		if existing.TenantID != record.TenantID {
			return fmt.Errorf("%w: %q", core.ErrContentOwnership, record.ExternalID)
		}
		record.CreatedAt = existing.CreatedAt
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("source_id", "kind", "media_type", "caption", "media_url", "thumbnail_url",
				"permalink", "published_at", "children", "fetched_at").
			WherePK().
			Exec(ctx)
		return updateErr
	})
	if err != nil {
		return core.ContentItem{}, err
	}
	return record.toDomain(), nil
}

// List returns one page of the tenant's items, newest first, and the total
// number of items matching the query.
func (s *ContentItemStore) List(ctx context.Context, query core.ContentQuery) ([]core.ContentItem, int, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("sqlstore: content item store is not configured")
	}
	var records []*contentItemRecord
	q := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(query.TenantID))
	if sourceID := strings.TrimSpace(query.SourceID); sourceID != "" {
		q = q.Where("?TableAlias.source_id = ?", sourceID)
	}
	q = q.OrderExpr("?TableAlias.published_at DESC NULLS LAST").
		OrderExpr("?TableAlias.external_id ASC")
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]core.ContentItem, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, total, nil
}

func (s *ContentItemStore) DeleteByTenant(ctx context.Context, tenantID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: content item store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*contentItemRecord)(nil)).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
