package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"
)

type RefreshSweepReport struct {
	Outcomes  []RefreshOutcome `json:"outcomes"`
	Failures  []TenantFailure  `json:"failures,omitempty"`
	Cancelled bool             `json:"cancelled"`
}

// RefreshIfNeeded upgrades the tenant's long-lived token when it expires within
// the refresh threshold. Provider failures are reported in the outcome; only
// missing accounts, unreadable credentials and storage failures return errors.
// Concurrent calls for the same tenant share a single refresh; a caller that
// gives up early does not cancel it for the others.
func (s *Service) RefreshIfNeeded(ctx context.Context, tenantID string) (RefreshOutcome, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return RefreshOutcome{}, NewFieldValidationError("tenant_id", "tenant id is required")
	}
	// The shared refresh outlives any single caller, bounded by the lock TTL.
	result := s.refreshGroup.DoChan(tenantID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Refresh.LockTTL)
		defer cancel()
		return s.refreshTenant(shared, tenantID)
	})
	select {
	case <-ctx.Done():
		return RefreshOutcome{TenantID: tenantID}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return RefreshOutcome{TenantID: tenantID}, res.Err
		}
		return res.Val.(RefreshOutcome), nil
	}
}

func (s *Service) refreshTenant(ctx context.Context, tenantID string) (outcome RefreshOutcome, err error) {
	startedAt := time.Now()
	defer func() {
		fields := map[string]any{
			"tenant_id": tenantID,
			"refreshed": outcome.Refreshed,
		}
		if outcome.Reason != "" {
			fields["reason"] = outcome.Reason
		}
		s.observeOperation(ctx, startedAt, "refresh_token", err, fields)
	}()

	outcome = RefreshOutcome{TenantID: tenantID}
	account, err := s.GetExternalAccount(ctx, tenantID)
	if err != nil {
		return outcome, err
	}
	if reason, due := s.refreshDue(account); !due {
		outcome.Reason = reason
		return outcome, nil
	}

	if s.locker != nil {
		handle, lockErr := s.locker.Acquire(ctx, tenantID, s.config.Refresh.LockTTL)
		if lockErr != nil {
			if errors.Is(lockErr, ErrLockHeld) {
				outcome.Reason = "refresh already in progress"
				return outcome, nil
			}
			return outcome, s.mapError(lockErr)
		}
		defer func() {
			_ = handle.Unlock(context.WithoutCancel(ctx))
		}()

		// another instance may have refreshed while the lock was contended
		account, err = s.GetExternalAccount(ctx, tenantID)
		if err != nil {
			return outcome, err
		}
		if reason, due := s.refreshDue(account); !due {
			outcome.Reason = reason
			return outcome, nil
		}
	}

	creds, err := s.vault.GetActiveCredentialSet(ctx, tenantID)
	if err != nil {
		return outcome, s.mapError(err)
	}

	token, upgradeErr := s.exchanger.UpgradeToken(ctx, creds.AppCredentials(), account.AccessToken)
	if upgradeErr != nil {
		outcome.Reason = errorMessage(upgradeErr)
		s.logWarn(ctx, "token refresh failed", map[string]any{
			"tenant_id":     tenantID,
			"reason":        outcome.Reason,
			"failure_class": string(ClassifyFailure(upgradeErr)),
		})
		return outcome, nil
	}

	now := s.now()
	updated, err := s.accounts.UpdateToken(ctx, UpdateTokenInput{
		TenantID:        tenantID,
		AccessToken:     token.AccessToken,
		ExpiresAt:       token.ExpiresAt(now),
		ExpectedVersion: account.Version,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountVersionConflict):
			outcome.Reason = "account changed during refresh"
			return outcome, nil
		case errors.Is(err, ErrRecordNotFound):
			outcome.Reason = "account disconnected during refresh"
			return outcome, nil
		}
		return outcome, s.mapError(err)
	}

	outcome.Refreshed = true
	outcome.NewExpiry = updated.ExpiresAt
	return outcome, nil
}

func (s *Service) refreshDue(account ExternalAccount) (string, bool) {
	if !account.Expiring() {
		return "token does not expire", false
	}
	remaining := account.ExpiresAt.Sub(s.now())
	if remaining > s.config.Refresh.Threshold {
		return fmt.Sprintf("token valid until %s", account.ExpiresAt.UTC().Format(time.RFC3339)), false
	}
	return "", true
}

// RefreshAll runs RefreshIfNeeded for every connected tenant. One tenant's
// failure never stops the others.
func (s *Service) RefreshAll(ctx context.Context) (report RefreshSweepReport, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_sweep", err, map[string]any{
			"tenants":  len(report.Outcomes),
			"failures": len(report.Failures),
		})
	}()

	tenants, err := s.accounts.ListTenantIDs(ctx)
	if err != nil {
		return RefreshSweepReport{}, s.mapError(err)
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
			outcome, refreshErr := s.RefreshIfNeeded(ctx, tenantID)
			mu.Lock()
			defer mu.Unlock()
			if refreshErr != nil {
				outcome.Reason = errorMessage(refreshErr)
				report.Failures = append(report.Failures, TenantFailure{
					TenantID: tenantID,
					Reason:   outcome.Reason,
					Class:    ClassifyFailure(refreshErr),
				})
			}
			report.Outcomes = append(report.Outcomes, outcome)
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(report.Outcomes, func(i, j int) bool { return report.Outcomes[i].TenantID < report.Outcomes[j].TenantID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].TenantID < report.Failures[j].TenantID })
	return report, nil
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return err.Error()
}
