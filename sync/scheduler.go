// Package sync runs the periodic content sweep.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-social-sync/core"
)

// SweepRunner is satisfied by core.Service.
type SweepRunner interface {
	ScheduledSync(ctx context.Context) (core.SweepReport, error)
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunOnStart runs one sweep before the first tick.
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) {
		s.runOnStart = enabled
	}
}

// WithReportHandler receives every finished sweep report.
func WithReportHandler(fn func(core.SweepReport, error)) Option {
	return func(s *Scheduler) {
		s.onReport = fn
	}
}

// Scheduler runs a sweep every interval. A tick that fires while a sweep is
// still running is dropped.
type Scheduler struct {
	runner     SweepRunner
	interval   time.Duration
	logger     glog.Logger
	runOnStart bool
	onReport   func(core.SweepReport, error)

	inflight gosync.WaitGroup
	running  atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
}

func NewScheduler(runner SweepRunner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("sync: sweep runner is required")
	}
	s := &Scheduler{
		runner:   runner,
		interval: core.DefaultSyncInterval,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// Run blocks until ctx is cancelled. The sweep in flight, if any, receives the
// same cancellation and Run returns only after it has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sync: scheduler is nil")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.inflight.Wait()

	if s.runOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("sweep still running, tick skipped")
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.running.Store(false)
		s.RunOnce(ctx)
	}()
}

// RunOnce runs a single sweep synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (core.SweepReport, error) {
	startedAt := time.Now()
	report, err := s.runner.ScheduledSync(ctx)
	s.runs.Add(1)
	if err != nil {
		s.logger.Error("sweep failed", "error", err, "duration_ms", time.Since(startedAt).Milliseconds())
	} else {
		s.logger.Info("sweep finished",
			"tenants", len(report.Tenants),
			"failures", len(report.Failures),
			"stored", report.Stored(),
			"cancelled", report.Cancelled,
			"purged_states", report.PurgedStates,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
	if s.onReport != nil {
		s.onReport(report, err)
	}
	return report, err
}

func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}
