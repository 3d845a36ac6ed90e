package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-social-sync/core"
)

const (
	JobIDSweep      = "socialsync.sweep"
	JobIDRefresh    = "socialsync.refresh"
	JobIDTenantSync = "socialsync.sync.tenant"

	paramTenantID = "tenant_id"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. Once
// MaxAttempts is reached a retry becomes a dead letter or a terminal failure.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// delayFor doubles BaseDelay per attempt. MaxDelay is applied by NormalizeAttempt.
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

func NewSweepMessage(at time.Time) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDSweep,
		ScriptPath:     JobIDSweep,
		Parameters:     map[string]any{},
		IdempotencyKey: JobIDSweep + ":" + at.UTC().Truncate(time.Minute).Format(time.RFC3339),
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

func NewRefreshMessage(tenantID string) *job.ExecutionMessage {
	return tenantMessage(JobIDRefresh, tenantID)
}

func NewTenantSyncMessage(tenantID string) *job.ExecutionMessage {
	return tenantMessage(JobIDTenantSync, tenantID)
}

func tenantMessage(jobID string, tenantID string) *job.ExecutionMessage {
	tenantID = strings.TrimSpace(tenantID)
	params := map[string]any{}
	if tenantID != "" {
		params[paramTenantID] = tenantID
	}
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     params,
		IdempotencyKey: jobID + ":" + tenantID,
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

func tenantIDParam(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	value, _ := msg.Parameters[paramTenantID].(string)
	return strings.TrimSpace(value)
}

type Enqueuer struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer, now: func() time.Time { return time.Now().UTC() }}
}

func (e *Enqueuer) EnqueueSweep(ctx context.Context) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return e.enqueue(ctx, NewSweepMessage(e.now()))
}

func (e *Enqueuer) EnqueueRefresh(ctx context.Context, tenantID string) error {
	return e.enqueueTenant(ctx, NewRefreshMessage(tenantID))
}

func (e *Enqueuer) EnqueueTenantSync(ctx context.Context, tenantID string) error {
	return e.enqueueTenant(ctx, NewTenantSyncMessage(tenantID))
}

func (e *Enqueuer) enqueueTenant(ctx context.Context, msg *job.ExecutionMessage) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if tenantIDParam(msg) == "" {
		return core.NewFieldValidationError("tenant_id", "tenant id is required")
	}
	return e.enqueue(ctx, msg)
}

func (e *Enqueuer) enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if _, err := e.enqueuer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", msg.JobID, err)
	}
	return nil
}

// Runner is the slice of core.Service the worker drives.
type Runner interface {
	ScheduledSync(ctx context.Context) (core.SweepReport, error)
	RefreshIfNeeded(ctx context.Context, tenantID string) (core.RefreshOutcome, error)
	TriggerSync(ctx context.Context, tenantID string) (core.TriggerSyncResult, error)
}

type WorkerOption func(*SweepWorker)

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *SweepWorker) {
		w.hook = hook
	}
}

func WithLogger(logger core.Logger) WorkerOption {
	return func(w *SweepWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *SweepWorker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// SweepWorker drains a go-job dequeuer and runs the matching service
// operation. Failures are nacked under the retry policy; invalid messages go
// straight to the dead letter queue.
type SweepWorker struct {
	dequeuer     queue.Dequeuer
	runner       Runner
	policy       RetryPolicy
	hook         worker.Hook
	logger       core.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func NewSweepWorker(dequeuer queue.Dequeuer, runner Runner, policy RetryPolicy, opts ...WorkerOption) (*SweepWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("gojob: runner is required")
	}
	w := &SweepWorker{
		dequeuer:     dequeuer,
		runner:       runner,
		policy:       policy,
		logger:       noopLogger(),
		pollInterval: time.Second,
		attempts:     map[string]int{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(w)
	}
	return w, nil
}

// Run processes deliveries until ctx is cancelled.
func (w *SweepWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Warn("job processing failed", "error", err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext handles at most one delivery. processed is false when the queue
// returned nothing.
func (w *SweepWorker) ProcessNext(ctx context.Context) (processed bool, err error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	msg := delivery.Message()
	key := attemptKey(msg)
	attempt := w.nextAttempt(key)

	startedAt := time.Now().UTC()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	w.fire(func(h worker.Hook) { h.OnStart(ctx, event) })

	runErr := w.dispatch(ctx, msg)
	event.Duration = time.Since(startedAt)
	event.Err = runErr

	if runErr == nil {
		w.resetAttempts(key)
		w.fire(func(h worker.Hook) { h.OnSuccess(ctx, event) })
		return true, delivery.Ack(ctx)
	}

	opts := queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       w.policy.delayFor(attempt),
		Reason:      runErr.Error(),
	}
	if core.IsValidationError(runErr) {
		opts.Disposition = queue.NackDispositionDeadLetter
	}
	normalized := w.policy.NormalizeAttempt(opts, attempt)
	event.Delay = normalized.Delay
	if normalized.Disposition == queue.NackDispositionRetry {
		w.fire(func(h worker.Hook) { h.OnRetry(ctx, event) })
	} else {
		w.resetAttempts(key)
		w.fire(func(h worker.Hook) { h.OnFailure(ctx, event) })
	}
	if nackErr := delivery.Nack(ctx, normalized); nackErr != nil {
		return true, errors.Join(runErr, nackErr)
	}
	return true, runErr
}

func (w *SweepWorker) dispatch(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return core.NewValidationError("job message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDSweep:
		_, err := w.runner.ScheduledSync(ctx)
		return err
	case JobIDRefresh:
		tenantID := tenantIDParam(msg)
		if tenantID == "" {
			return core.NewFieldValidationError("tenant_id", "tenant id is required")
		}
		outcome, err := w.runner.RefreshIfNeeded(ctx, tenantID)
		if err != nil {
			return err
		}
		w.logger.Info("refresh job finished", "tenant_id", tenantID, "refreshed", outcome.Refreshed, "reason", outcome.Reason)
		return nil
	case JobIDTenantSync:
		tenantID := tenantIDParam(msg)
		if tenantID == "" {
			return core.NewFieldValidationError("tenant_id", "tenant id is required")
		}
		result, err := w.runner.TriggerSync(ctx, tenantID)
		if err != nil {
			return err
		}
		w.logger.Info("tenant sync job finished", "tenant_id", tenantID, "stored", result.StoredCount, "has_more", result.HasMore)
		return nil
	default:
		return core.NewFieldValidationError("job_id", fmt.Sprintf("unknown job %q", msg.JobID))
	}
}

func (w *SweepWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *SweepWorker) resetAttempts(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *SweepWorker) fire(fn func(worker.Hook)) {
	if w.hook == nil {
		return
	}
	fn(w.hook)
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID) + ":" + tenantIDParam(msg)
}

// MetricsHook records job lifecycle counters and durations.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event) {
	h.recorder.IncCounter(ctx, "socialsync.job.started", 1, jobTags(event, ""))
}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.recorder.IncCounter(ctx, "socialsync.job.finished", 1, jobTags(event, "success"))
	h.recorder.ObserveHistogram(ctx, "socialsync.job.duration_ms", float64(event.Duration.Milliseconds()), jobTags(event, "success"))
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	h.recorder.IncCounter(ctx, "socialsync.job.finished", 1, jobTags(event, "failure"))
	h.recorder.ObserveHistogram(ctx, "socialsync.job.duration_ms", float64(event.Duration.Milliseconds()), jobTags(event, "failure"))
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.recorder.IncCounter(ctx, "socialsync.job.retried", 1, jobTags(event, "retry"))
}

func jobTags(event worker.Event, status string) map[string]string {
	tags := map[string]string{"job_id": "unknown"}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil && strings.TrimSpace(message.JobID) != "" {
		tags["job_id"] = strings.TrimSpace(message.JobID)
	}
	if status != "" {
		tags["status"] = status
	}
	return tags
}

func noopLogger() core.Logger {
	return glog.Nop()
}

var (
	_ worker.Hook = (*MetricsHook)(nil)
	_ Runner      = (*core.Service)(nil)
)
