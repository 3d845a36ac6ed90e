package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-social-sync/core"
	socialmigrations "github.com/goliatone/go-social-sync/migrations"
	"github.com/goliatone/go-social-sync/ratelimit"
	sqlstore "github.com/goliatone/go-social-sync/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-social-sync-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"social_credential_sets",
		"social_oauth_states",
		"social_external_accounts",
		"social_content_items",
		"social_rate_limit_state",
	} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCredentialSetStore_ActivateKeepsOneActivePerTenant(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.CredentialSetStore()

	first, err := store.Activate(ctx, encryptedRecord("tenant-a", "First"))
	if err != nil {
		t.Fatalf("activate first: %v", err)
	}
	if first.ID == "" || !first.Active {
		t.Fatalf("expected active record with id, got %+v", first)
	}
	if found, err := store.GetActive(ctx, "tenant-a"); err != nil || found.ID != first.ID {
		t.Fatalf("expected the stored boolean flag to match, got %+v %v", found, err)
	}
	second, err := store.Activate(ctx, encryptedRecord("tenant-a", "Second"))
	if err != nil {
		t.Fatalf("activate second: %v", err)
	}
	if _, err := store.Activate(ctx, encryptedRecord("tenant-b", "Other")); err != nil {
		t.Fatalf("activate other tenant: %v", err)
	}

	active, err := store.GetActive(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != second.ID || active.DisplayName != "Second" {
		t.Fatalf("expected second set to be active, got %+v", active)
	}

	all, err := store.List(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sets for tenant-a, got %d", len(all))
	}
	activeCount := 0
	for _, record := range all {
		if record.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active set, got %d", activeCount)
	}

	previous, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if previous.Active {
		t.Fatalf("expected first set to be deactivated")
	}
}

func TestCredentialSetStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).CredentialSetStore()

	created, err := store.Activate(ctx, encryptedRecord("tenant-a", "Default"))
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	created.DisplayName = "Renamed"
	created.EncryptedAppSecret = "cipher-secret-2"
	updated, err := store.Update(ctx, created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName != "Renamed" || updated.EncryptedAppSecret != "cipher-secret-2" {
		t.Fatalf("unexpected updated record %+v", updated)
	}
	if !updated.Active {
		t.Fatalf("expected update to keep the set active")
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetActive(ctx, "tenant-a"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, created.ID); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := store.Update(ctx, created); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found updating deleted set, got %v", err)
	}
}

func TestOAuthStateStore_ConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).OAuthStateStore()

	now := time.Now().UTC()
	if err := store.Save(ctx, core.OAuthStateRecord{
		State:     "state-1",
		TenantID:  "tenant-a",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := store.Consume(ctx, "state-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
				if record.TenantID != "tenant-a" {
					t.Errorf("unexpected tenant %q", record.TenantID)
				}
			case errors.Is(err, core.ErrRecordNotFound):
				notFound++
			default:
				t.Errorf("unexpected consume error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || notFound != workers-1 {
		t.Fatalf("expected exactly one consumer to win, got successes=%d notFound=%d", successes, notFound)
	}
	if err := store.Delete(ctx, "state-1"); err != nil {
		t.Fatalf("delete of consumed state should be a no-op: %v", err)
	}
}

func TestOAuthStateStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.OAuthStates()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, expiresAt := range []time.Time{now.Add(-time.Minute), now.Add(-time.Hour), now.Add(time.Minute)} {
		if err := store.Save(ctx, core.OAuthStateRecord{
			State:     fmt.Sprintf("state-%d", i),
			TenantID:  "tenant-a",
			CreatedAt: expiresAt.Add(-10 * time.Minute),
			ExpiresAt: expiresAt,
		}); err != nil {
			t.Fatalf("save state %d: %v", i, err)
		}
	}
	purged, err := store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged states, got %d", purged)
	}
	if _, err := store.Consume(ctx, "state-2"); err != nil {
		t.Fatalf("expected live state to survive purge: %v", err)
	}
}

func TestExternalAccountStore_ReplaceAndVersionedTokenUpdate(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).ExternalAccountStore()

	expiresAt := time.Now().UTC().Add(60 * 24 * time.Hour).Truncate(time.Second)
	account, err := store.Replace(ctx, core.ExternalAccount{
		TenantID:       "tenant-a",
		AccessToken:    "token-1",
		TokenType:      "bearer",
		ExpiresAt:      &expiresAt,
		ExternalUserID: "user-1",
		DisplayName:    "User One",
		SubAccounts: []core.SubAccount{
			{ID: "page-1", Name: "Page One", AccessToken: "page-token-1"},
		},
		SecondaryAccountID: "ig-1",
		GrantedScopes:      []string{"pages_show_list"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if account.Version != 1 {
		t.Fatalf("expected version 1, got %d", account.Version)
	}

	loaded, err := store.Get(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.SubAccounts) != 1 || loaded.SubAccounts[0].AccessToken != "page-token-1" {
		t.Fatalf("expected sub-accounts to round trip, got %+v", loaded.SubAccounts)
	}
	if loaded.SecondaryAccountID != "ig-1" {
		t.Fatalf("expected secondary account ig-1, got %q", loaded.SecondaryAccountID)
	}

	newExpiry := expiresAt.Add(30 * 24 * time.Hour)
	refreshed, err := store.UpdateToken(ctx, core.UpdateTokenInput{
		TenantID:        "tenant-a",
		AccessToken:     "token-2",
		ExpiresAt:       &newExpiry,
		ExpectedVersion: 1,
	})
	if err != nil {
		t.Fatalf("update token: %v", err)
	}
	if refreshed.AccessToken != "token-2" || refreshed.Version != 2 {
		t.Fatalf("unexpected refreshed account %+v", refreshed)
	}

	_, err = store.UpdateToken(ctx, core.UpdateTokenInput{
		TenantID:        "tenant-a",
		AccessToken:     "token-stale",
		ExpectedVersion: 1,
	})
	if !errors.Is(err, core.ErrAccountVersionConflict) {
		t.Fatalf("expected version conflict for stale update, got %v", err)
	}

	reconnected, err := store.Replace(ctx, core.ExternalAccount{
		TenantID:       "tenant-a",
		AccessToken:    "token-3",
		TokenType:      "bearer",
		ExternalUserID: "user-1",
	})
	if err != nil {
		t.Fatalf("replace again: %v", err)
	}
	if reconnected.Version != 3 {
		t.Fatalf("expected replace to continue version numbering, got %d", reconnected.Version)
	}
	if reconnected.Expiring() {
		t.Fatalf("expected non-expiring token after replace")
	}

	_, err = store.UpdateToken(ctx, core.UpdateTokenInput{TenantID: "tenant-missing", AccessToken: "x", ExpectedVersion: 1})
	if !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found for missing tenant, got %v", err)
	}
}

func TestExternalAccountStore_ListTenantIDsAndPurge(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	accounts := factory.ExternalAccountStore()
	content := factory.ContentItemStore()

	for _, tenantID := range []string{"tenant-b", "tenant-a"} {
		if _, err := accounts.Replace(ctx, core.ExternalAccount{
			TenantID:       tenantID,
			AccessToken:    "token-" + tenantID,
			TokenType:      "bearer",
			ExternalUserID: "user-" + tenantID,
		}); err != nil {
			t.Fatalf("replace %s: %v", tenantID, err)
		}
		if _, err := content.Upsert(ctx, contentItem(tenantID, "item-"+tenantID, time.Now().UTC())); err != nil {
			t.Fatalf("upsert content %s: %v", tenantID, err)
		}
	}

	ids, err := accounts.ListTenantIDs(ctx)
	if err != nil {
		t.Fatalf("list tenant ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "tenant-a" || ids[1] != "tenant-b" {
		t.Fatalf("unexpected tenant ids %v", ids)
	}

	purger, ok := accounts.(core.TenantConnectionPurger)
	if !ok {
		t.Fatalf("expected account store to purge tenant connections")
	}
	if err := purger.PurgeTenantConnection(ctx, "tenant-a"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := accounts.Get(ctx, "tenant-a"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected purged account to be gone, got %v", err)
	}
	_, total, err := content.List(ctx, core.ContentQuery{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("list purged content: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected purged tenant content to be gone, got %d", total)
	}
	_, total, err = content.List(ctx, core.ContentQuery{TenantID: "tenant-b"})
	if err != nil {
		t.Fatalf("list other tenant content: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected other tenant content to survive, got %d", total)
	}
}

func TestContentItemStore_UpsertKeepsOwnershipAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).ContentItemStore()

	published := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	first, err := store.Upsert(ctx, contentItem("tenant-a", "media-1", published))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	updatedItem := contentItem("tenant-a", "media-1", published)
	caption := "edited caption"
	updatedItem.Caption = &caption
	updatedItem.FetchedAt = first.FetchedAt.Add(time.Hour)
	second, err := store.Upsert(ctx, updatedItem)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Caption == nil || *second.Caption != "edited caption" {
		t.Fatalf("expected caption to be updated, got %+v", second.Caption)
	}
	if second.CreatedAt.Sub(first.CreatedAt).Abs() > time.Millisecond {
		t.Fatalf("expected created_at to be preserved: %s != %s", second.CreatedAt, first.CreatedAt)
	}

	_, err = store.Upsert(ctx, contentItem("tenant-b", "media-1", published))
	if !errors.Is(err, core.ErrContentOwnership) {
		t.Fatalf("expected ownership error for foreign tenant, got %v", err)
	}

	items, total, err := store.List(ctx, core.ContentQuery{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].TenantID != "tenant-a" {
		t.Fatalf("expected single tenant-a item, got total=%d items=%+v", total, items)
	}
	if len(items[0].Children) != 1 || items[0].Children[0].ID != "child-1" {
		t.Fatalf("expected children to round trip, got %+v", items[0].Children)
	}
}

func TestContentItemStore_ListOrdersNewestFirstAndPaginates(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).ContentItemStore()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		if _, err := store.Upsert(ctx, contentItem("tenant-a", fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("upsert item %d: %v", i, err)
		}
	}
	undated := contentItem("tenant-a", "item-undated", time.Time{})
	if _, err := store.Upsert(ctx, undated); err != nil {
		t.Fatalf("upsert undated: %v", err)
	}

	page, total, err := store.List(ctx, core.ContentQuery{TenantID: "tenant-a", Limit: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if total != 6 {
		t.Fatalf("expected total 6, got %d", total)
	}
	if len(page) != 2 || page[0].ExternalID != "item-4" || page[1].ExternalID != "item-3" {
		t.Fatalf("unexpected first page %v", externalIDs(page))
	}

	last, _, err := store.List(ctx, core.ContentQuery{TenantID: "tenant-a", Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("list last page: %v", err)
	}
	if len(last) != 2 || last[0].ExternalID != "item-0" || last[1].ExternalID != "item-undated" {
		t.Fatalf("expected undated item last, got %v", externalIDs(last))
	}

	deleted, err := store.DeleteByTenant(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("delete by tenant: %v", err)
	}
	if deleted != 6 {
		t.Fatalf("expected 6 deleted items, got %d", deleted)
	}
}

func TestRateLimitStateStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).RateLimitStateStore()

	key := core.RateLimitKey{ProviderID: "meta", ScopeType: "tenant", ScopeID: "tenant-a", BucketKey: "list_media"}
	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected state not found, got %v", err)
	}

	until := time.Now().UTC().Add(7 * time.Minute).Truncate(time.Second)
	retryAfter := 7 * time.Minute
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            key,
		UsagePercent:   100,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &until,
		LastStatus:     200,
		Attempts:       1,
		Metadata:       map[string]any{"usage_percent": 100},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.Upsert(ctx, ratelimit.State{
		Key:          core.RateLimitKey{ProviderID: " META ", ScopeType: "Tenant", ScopeID: "tenant-a", BucketKey: "LIST_MEDIA"},
		UsagePercent: 40,
		LastStatus:   200,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.UsagePercent != 40 || state.ThrottledUntil != nil || state.Attempts != 0 {
		t.Fatalf("expected normalized key to update the same row, got %+v", state)
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func encryptedRecord(tenantID string, displayName string) core.EncryptedCredentialRecord {
	return core.EncryptedCredentialRecord{
		TenantID:             tenantID,
		EncryptedAppID:       "cipher-app-id",
		EncryptedAppSecret:   "cipher-secret",
		EncryptedRedirectURI: "cipher-redirect",
		DisplayName:          displayName,
	}
}

func contentItem(tenantID string, externalID string, publishedAt time.Time) core.ContentItem {
	caption := "caption " + externalID
	return core.ContentItem{
		ExternalID:  externalID,
		TenantID:    tenantID,
		SourceID:    "ig-1",
		Kind:        core.ContentKindMedia,
		MediaType:   "CAROUSEL_ALBUM",
		Caption:     &caption,
		MediaURL:    "https://cdn.test/" + externalID + ".jpg",
		Permalink:   "https://instagram.test/p/" + externalID,
		PublishedAt: publishedAt,
		Children:    []core.ChildMedia{{ID: "child-1", MediaType: "IMAGE"}},
	}
}

func externalIDs(items []core.ContentItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ExternalID)
	}
	return out
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:socialsync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = socialmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != socialmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, socialmigrations.WithDialects(socialmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
