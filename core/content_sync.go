package core

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// FetchPage lists one page of a tenant source without storing anything.
func (s *Service) FetchPage(ctx context.Context, tenantID string, sourceID string, after string, limit int) (ContentPage, error) {
	account, source, err := s.resolveSource(ctx, tenantID, sourceID)
	if err != nil {
		return ContentPage{}, err
	}
	return s.fetchSourcePage(ctx, account.TenantID, source, after, limit)
}

// SyncOne fetches the first page of a source and upserts every item on it.
// Item failures are collected in the outcome and never abort the page.
func (s *Service) SyncOne(ctx context.Context, tenantID string, sourceID string, limit int) (SyncOutcome, error) {
	account, source, err := s.resolveSource(ctx, tenantID, sourceID)
	if err != nil {
		return SyncOutcome{TenantID: tenantID, SourceID: sourceID}, err
	}
	return s.syncSource(ctx, account.TenantID, source, limit, 1)
}

// Backfill drains a source page by page until the provider reports no more
// pages or maxPages is reached.
func (s *Service) Backfill(ctx context.Context, tenantID string, sourceID string, limit int, maxPages int) (SyncOutcome, error) {
	account, source, err := s.resolveSource(ctx, tenantID, sourceID)
	if err != nil {
		return SyncOutcome{TenantID: tenantID, SourceID: sourceID}, err
	}
	if maxPages <= 0 {
		maxPages = s.config.Sync.MaxBackfillPages
	}
	return s.syncSource(ctx, account.TenantID, source, limit, maxPages)
}

func (s *Service) resolveSource(ctx context.Context, tenantID string, sourceID string) (ExternalAccount, ContentSource, error) {
	tenantID = strings.TrimSpace(tenantID)
	sourceID = strings.TrimSpace(sourceID)
	if tenantID == "" {
		return ExternalAccount{}, ContentSource{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	if sourceID == "" {
		return ExternalAccount{}, ContentSource{}, NewFieldValidationError("source_id", "source id is required")
	}
	account, err := s.GetExternalAccount(ctx, tenantID)
	if err != nil {
		return ExternalAccount{}, ContentSource{}, err
	}
	source, ok := account.Source(sourceID)
	if !ok {
		return ExternalAccount{}, ContentSource{}, NewNotFoundError("content source not found for tenant")
	}
	return account, source, nil
}

func (s *Service) fetchSourcePage(ctx context.Context, tenantID string, source ContentSource, after string, limit int) (ContentPage, error) {
	page, err := s.lister.ListContent(ctx, ContentListRequest{
		TenantID:    tenantID,
		SourceID:    source.ID,
		Kind:        source.Kind,
		AccessToken: source.AccessToken,
		After:       after,
		Limit:       s.clampLimit(limit),
	})
	if err != nil {
		return ContentPage{}, s.mapError(err)
	}
	for i := range page.Items {
		page.Items[i].TenantID = tenantID
		page.Items[i].SourceID = source.ID
		if page.Items[i].Kind == "" {
			page.Items[i].Kind = source.Kind
		}
	}
	page.HasMore = page.NextCursor != ""
	return page, nil
}

func (s *Service) syncSource(ctx context.Context, tenantID string, source ContentSource, limit int, maxPages int) (outcome SyncOutcome, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "sync_source", err, map[string]any{
			"tenant_id": tenantID,
			"source_id": source.ID,
			"kind":      string(source.Kind),
			"stored":    outcome.Stored,
			"failed":    outcome.Failed,
			"pages":     outcome.Pages,
		})
	}()

	outcome = SyncOutcome{TenantID: tenantID, SourceID: source.ID}
	seen := map[string]struct{}{}
	cursor := ""
	for outcome.Pages < maxPages {
		if ctx.Err() != nil {
			break
		}
		page, fetchErr := s.fetchSourcePage(ctx, tenantID, source, cursor, limit)
		if fetchErr != nil {
			if outcome.Pages == 0 {
				return outcome, fetchErr
			}
			// keep what earlier pages stored
			s.logWarn(ctx, "content page fetch failed", map[string]any{
				"tenant_id": tenantID,
				"source_id": source.ID,
				"error":     errorMessage(fetchErr),
			})
			break
		}
		outcome.merge(s.storePage(ctx, tenantID, source.ID, page))
		if page.NextCursor == "" {
			break
		}
		if _, repeated := seen[page.NextCursor]; repeated {
			outcome.HasMore = false
			break
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
	return outcome, nil
}

// storePage upserts items one by one. Each write runs to completion even when
// ctx is cancelled; cancellation only stops the next item.
func (s *Service) storePage(ctx context.Context, tenantID string, sourceID string, page ContentPage) SyncOutcome {
	outcome := SyncOutcome{
		TenantID:   tenantID,
		SourceID:   sourceID,
		Pages:      1,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	writeCtx := context.WithoutCancel(ctx)
	now := s.now()
	for _, item := range page.Items {
		if ctx.Err() != nil {
			outcome.HasMore = true
			break
		}
		if strings.TrimSpace(item.ExternalID) == "" {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, ItemFailure{Reason: "item has no external id"})
			continue
		}
		item.FetchedAt = now
		if _, err := s.content.Upsert(writeCtx, item); err != nil {
			reason := errorMessage(err)
			if errors.Is(err, ErrContentOwnership) {
				reason = "external id already owned by another tenant"
			}
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, ItemFailure{ExternalID: item.ExternalID, Reason: reason})
			s.logWarn(ctx, "content item upsert failed", map[string]any{
				"tenant_id":   tenantID,
				"source_id":   sourceID,
				"external_id": item.ExternalID,
				"error":       reason,
			})
			continue
		}
		outcome.Stored++
	}
	return outcome
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.config.Sync.PageSize
	}
	if limit > s.config.Sync.MaxPageSize {
		return s.config.Sync.MaxPageSize
	}
	return limit
}

// SyncTenant refreshes the tenant token when due, then syncs every source of the
// account concurrently. Source failures land in the report.
func (s *Service) SyncTenant(ctx context.Context, tenantID string, pageSize int) (TenantSyncReport, error) {
	report, _, err := s.syncTenant(ctx, tenantID, pageSize)
	return report, err
}

func (s *Service) syncTenant(ctx context.Context, tenantID string, pageSize int) (report TenantSyncReport, sourceErrs []error, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "sync_tenant", err, map[string]any{
			"tenant_id":       tenantID,
			"stored":          report.Stored(),
			"source_failures": len(report.SourceFailures),
		})
	}()

	tenantID = strings.TrimSpace(tenantID)
	report = TenantSyncReport{TenantID: tenantID}
	refresh, err := s.RefreshIfNeeded(ctx, tenantID)
	report.Refresh = refresh
	if err != nil {
		return report, nil, err
	}
	account, err := s.GetExternalAccount(ctx, tenantID)
	if err != nil {
		return report, nil, err
	}

	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(s.config.Sync.SourceConcurrency)
	for _, source := range account.Sources() {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			outcome, syncErr := s.syncSource(ctx, tenantID, source, pageSize, 1)
			mu.Lock()
			defer mu.Unlock()
			if syncErr != nil {
				sourceErrs = append(sourceErrs, syncErr)
				report.SourceFailures = append(report.SourceFailures, SourceSyncFailure{
					SourceID: source.ID,
					Reason:   errorMessage(syncErr),
					Class:    ClassifyFailure(syncErr),
				})
				return nil
			}
			report.Sources = append(report.Sources, outcome)
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(report.Sources, func(i, j int) bool { return report.Sources[i].SourceID < report.Sources[j].SourceID })
	sort.Slice(report.SourceFailures, func(i, j int) bool {
		return report.SourceFailures[i].SourceID < report.SourceFailures[j].SourceID
	})
	return report, sourceErrs, nil
}

// TriggerSync runs an interactive sync for one tenant. It fails only when the
// tenant cannot be synced at all or every source failed.
func (s *Service) TriggerSync(ctx context.Context, tenantID string) (TriggerSyncResult, error) {
	report, sourceErrs, err := s.syncTenant(ctx, tenantID, s.config.Sync.PageSize)
	if err != nil {
		return TriggerSyncResult{Report: report}, err
	}
	if len(report.Sources) == 0 && len(sourceErrs) > 0 {
		return TriggerSyncResult{Report: report}, sourceErrs[0]
	}
	return TriggerSyncResult{
		StoredCount: report.Stored(),
		HasMore:     report.HasMore(),
		Report:      report,
	}, nil
}

// ScheduledSync syncs every connected tenant with bounded concurrency. A failing
// tenant is recorded and skipped. Once ctx is done no new tenant is started.
func (s *Service) ScheduledSync(ctx context.Context) (report SweepReport, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "scheduled_sync", err, map[string]any{
			"tenants":   len(report.Tenants),
			"failures":  len(report.Failures),
			"stored":    report.Stored(),
			"cancelled": report.Cancelled,
			"purged":    report.PurgedStates,
		})
		if err == nil {
			s.recordSweep(ctx, report)
		}
	}()

	report.StartedAt = s.now()
	// A failed purge is logged by its own operation and does not stop the sweep.
	report.PurgedStates, _ = s.PurgeExpiredStates(ctx)

	tenants, err := s.accounts.ListTenantIDs(ctx)
	if err != nil {
		return report, s.mapError(err)
	}

	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(s.config.Sync.TenantConcurrency)
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		group.Go(func() error {
			tenantReport, syncErr := s.SyncTenant(ctx, tenantID, s.config.Sync.SweepPageSize)
			mu.Lock()
			defer mu.Unlock()
			if syncErr != nil {
				report.Failures = append(report.Failures, TenantFailure{
					TenantID: tenantID,
					Reason:   errorMessage(syncErr),
					Class:    ClassifyFailure(syncErr),
				})
				return nil
			}
			report.Tenants = append(report.Tenants, tenantReport)
			return nil
		})
	}
	_ = group.Wait()
	if ctx.Err() != nil {
		report.Cancelled = true
	}

	sort.Slice(report.Tenants, func(i, j int) bool { return report.Tenants[i].TenantID < report.Tenants[j].TenantID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].TenantID < report.Failures[j].TenantID })
	report.FinishedAt = s.now()
	return report, nil
}

// ListContent pages through stored content, newest first. The cursor is opaque
// to callers.
func (s *Service) ListContent(ctx context.Context, req ListContentRequest) (ContentPage, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return ContentPage{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	offset, err := decodeListCursor(req.Cursor)
	if err != nil {
		return ContentPage{}, err
	}
	limit := s.clampLimit(req.Limit)

	items, total, err := s.content.List(ctx, ContentQuery{TenantID: tenantID, Offset: offset, Limit: limit})
	if err != nil {
		return ContentPage{}, s.mapError(err)
	}
	page := ContentPage{Items: items}
	if next := offset + len(items); len(items) > 0 && next < total {
		page.NextCursor = encodeListCursor(next)
		page.HasMore = true
	}
	return page, nil
}

const listCursorPrefix = "o:"

func encodeListCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(listCursorPrefix + strconv.Itoa(offset)))
}

func decodeListCursor(cursor string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !strings.HasPrefix(string(raw), listCursorPrefix) {
		return 0, NewFieldValidationError("cursor", "cursor is malformed")
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), listCursorPrefix))
	if err != nil || offset < 0 {
		return 0, NewFieldValidationError("cursor", "cursor is malformed")
	}
	return offset, nil
}
