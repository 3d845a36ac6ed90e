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

type OAuthStateStore struct {
	db *bun.DB
}

func NewOAuthStateStore(db *bun.DB) (*OAuthStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &OAuthStateStore{db: db}, nil
}

func (s *OAuthStateStore) Save(ctx context.Context, in core.OAuthStateRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	state := strings.TrimSpace(in.State)
	if state == "" {
		return fmt.Errorf("sqlstore: oauth state is required")
	}
	record := &oauthStateRecord{
		State:     state,
		TenantID:  strings.TrimSpace(in.TenantID),
		CreatedAt: in.CreatedAt.UTC(),
		ExpiresAt: in.ExpiresAt.UTC(),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// Consume reads and deletes the state in one transaction. Only the caller
// whose delete affected the row gets the record back.
func (s *OAuthStateStore) Consume(ctx context.Context, state string) (core.OAuthStateRecord, error) {
	if s == nil || s.db == nil {
		return core.OAuthStateRecord{}, fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	var consumed core.OAuthStateRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &oauthStateRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: oauth state", core.ErrRecordNotFound)
			}
			return err
		}
		result, err := tx.NewDelete().
			Model((*oauthStateRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: oauth state", core.ErrRecordNotFound)
		}
		consumed = record.toDomain()
		return nil
	})
	if err != nil {
		return core.OAuthStateRecord{}, err
	}
	return consumed, nil
}

func (s *OAuthStateStore) Delete(ctx context.Context, state string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*oauthStateRecord)(nil)).
		Where("state = ?", strings.TrimSpace(state)).
		Exec(ctx)
	return err
}

// PurgeExpired removes states that expired before now and reports how many.
func (s *OAuthStateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*oauthStateRecord)(nil)).
		Where("expires_at < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
