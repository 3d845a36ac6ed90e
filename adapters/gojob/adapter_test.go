package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-social-sync/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageBuildersCarryTenantAndIdempotencyKey(t *testing.T) {
	refresh := NewRefreshMessage(" tenant_1 ")
	if refresh.JobID != JobIDRefresh {
		t.Fatalf("expected refresh job id, got %q", refresh.JobID)
	}
	if got := tenantIDParam(refresh); got != "tenant_1" {
		t.Fatalf("expected trimmed tenant id, got %q", got)
	}
	if refresh.IdempotencyKey != JobIDRefresh+":tenant_1" {
		t.Fatalf("unexpected idempotency key %q", refresh.IdempotencyKey)
	}

	at := time.Date(2026, 3, 1, 10, 15, 42, 0, time.UTC)
	first := NewSweepMessage(at)
	second := NewSweepMessage(at.Add(10 * time.Second))
	if first.IdempotencyKey != second.IdempotencyKey {
		t.Fatalf("expected sweeps in the same minute to share a key")
	}
	if third := NewSweepMessage(at.Add(time.Minute)); third.IdempotencyKey == first.IdempotencyKey {
		t.Fatalf("expected sweeps in different minutes to differ")
	}
}

func TestEnqueuerRejectsBlankTenant(t *testing.T) {
	ctx := context.Background()
	raw := &stubQueueEnqueuer{}
	enqueuer := NewEnqueuer(raw)

	if err := enqueuer.EnqueueTenantSync(ctx, "  "); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if raw.last != nil {
		t.Fatalf("expected nothing enqueued")
	}
	if err := enqueuer.EnqueueTenantSync(ctx, "tenant_1"); err != nil {
		t.Fatalf("enqueue tenant sync: %v", err)
	}
	if raw.last == nil || raw.last.JobID != JobIDTenantSync {
		t.Fatalf("expected tenant sync message")
	}
	if err := enqueuer.EnqueueSweep(ctx); err != nil {
		t.Fatalf("enqueue sweep: %v", err)
	}
	if raw.last.JobID != JobIDSweep {
		t.Fatalf("expected sweep message, got %q", raw.last.JobID)
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	}

	opts := policy.NormalizeAttempt(queue.NackOptions{
		Delay:  30 * time.Second,
		Reason: "transient",
	}, 1)
	if opts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", opts.Delay)
	}
	if opts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry before max attempts, got %q", opts.Disposition)
	}

	opts = policy.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       time.Second,
		Reason:      "still failing",
	}, 3)
	if opts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter on max attempts, got %q", opts.Disposition)
	}
	if opts.Delay != 0 {
		t.Fatalf("expected no delay for a terminal nack, got %s", opts.Delay)
	}

	policy.DeadLetterOnMax = false
	opts = policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionRetry}, 3)
	if opts.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected terminal failure without dead lettering, got %q", opts.Disposition)
	}

	opts = policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionDeadLetter}, 1)
	if opts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected explicit dead letter to be kept, got %q", opts.Disposition)
	}
}

func TestSweepWorkerAcksSuccessfulJobs(t *testing.T) {
	ctx := context.Background()
	delivery := &stubQueueDelivery{msg: NewTenantSyncMessage("tenant_1")}
	runner := &stubRunner{}
	hook := &capturingHook{}
	w, err := NewSweepWorker(&stubQueueDequeuer{delivery: delivery}, runner, RetryPolicy{}, WithHook(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	processed, err := w.ProcessNext(ctx)
	if err != nil || !processed {
		t.Fatalf("expected processed job, got processed=%v err=%v", processed, err)
	}
	if !delivery.acked {
		t.Fatalf("expected ack")
	}
	if runner.syncedTenant != "tenant_1" {
		t.Fatalf("expected tenant sync for tenant_1, got %q", runner.syncedTenant)
	}
	if hook.started != 1 || hook.succeeded != 1 {
		t.Fatalf("expected start and success hooks, got %+v", hook)
	}
}

func TestSweepWorkerRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	delivery := &stubQueueDelivery{msg: NewRefreshMessage("tenant_1")}
	runner := &stubRunner{refreshErr: errors.New("graph unavailable")}
	hook := &capturingHook{}
	w, err := NewSweepWorker(&stubQueueDequeuer{delivery: delivery}, runner, RetryPolicy{
		MaxAttempts:     2,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	}, WithHook(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if _, err := w.ProcessNext(ctx); err == nil {
		t.Fatalf("expected runner error")
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry on first failure, got %+v", delivery.nackOpts)
	}
	if delivery.nackOpts.Delay != time.Second {
		t.Fatalf("expected base delay, got %s", delivery.nackOpts.Delay)
	}
	if hook.retried != 1 || hook.lastAttempt != 1 {
		t.Fatalf("expected retry hook for attempt 1, got %+v", hook)
	}

	if _, err := w.ProcessNext(ctx); err == nil {
		t.Fatalf("expected runner error")
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter on max attempts, got %+v", delivery.nackOpts)
	}
	if hook.failed != 1 || hook.lastAttempt != 2 {
		t.Fatalf("expected failure hook for attempt 2, got %+v", hook)
	}
}

func TestSweepWorkerDeadLettersInvalidMessages(t *testing.T) {
	ctx := context.Background()
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "socialsync.unknown"}}
	w, err := NewSweepWorker(&stubQueueDequeuer{delivery: delivery}, &stubRunner{}, RetryPolicy{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.ProcessNext(ctx); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected immediate dead letter, got %+v", delivery.nackOpts)
	}
}

func TestSweepWorkerEmptyQueue(t *testing.T) {
	w, err := NewSweepWorker(&stubQueueDequeuer{}, &stubRunner{}, RetryPolicy{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	processed, err := w.ProcessNext(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle worker, got processed=%v err=%v", processed, err)
	}
}

func TestMetricsHookTagsJobAndStatus(t *testing.T) {
	recorder := &capturingRecorder{}
	hook := NewMetricsHook(recorder)
	event := worker.Event{
		Message:  NewSweepMessage(time.Now()),
		Attempt:  2,
		Duration: 250 * time.Millisecond,
	}

	hook.OnSuccess(context.Background(), event)
	if len(recorder.counters) != 1 || recorder.counters[0].name != "socialsync.job.finished" {
		t.Fatalf("expected finished counter, got %+v", recorder.counters)
	}
	tags := recorder.counters[0].tags
	if tags["job_id"] != JobIDSweep || tags["status"] != "success" {
		t.Fatalf("unexpected tags %+v", tags)
	}
	if len(recorder.histograms) != 1 || recorder.histograms[0] != 250 {
		t.Fatalf("expected duration histogram, got %+v", recorder.histograms)
	}
}

type stubRunner struct {
	refreshErr   error
	syncedTenant string
}

func (s *stubRunner) ScheduledSync(context.Context) (core.SweepReport, error) {
	return core.SweepReport{}, nil
}

func (s *stubRunner) RefreshIfNeeded(_ context.Context, tenantID string) (core.RefreshOutcome, error) {
	if s.refreshErr != nil {
		return core.RefreshOutcome{}, s.refreshErr
	}
	return core.RefreshOutcome{TenantID: tenantID}, nil
}

func (s *stubRunner) TriggerSync(_ context.Context, tenantID string) (core.TriggerSyncResult, error) {
	s.syncedTenant = tenantID
	return core.TriggerSyncResult{StoredCount: 3}, nil
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: msg.JobID}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	started     int
	succeeded   int
	failed      int
	retried     int
	lastAttempt int
}

func (h *capturingHook) OnStart(context.Context, worker.Event) { h.started++ }
func (h *capturingHook) OnSuccess(context.Context, worker.Event) {
	h.succeeded++
}
func (h *capturingHook) OnFailure(_ context.Context, event worker.Event) {
	h.failed++
	h.lastAttempt = event.Attempt
}
func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.retried++
	h.lastAttempt = event.Attempt
}

type counterCall struct {
	name string
	tags map[string]string
}

type capturingRecorder struct {
	counters   []counterCall
	histograms []float64
}

func (r *capturingRecorder) IncCounter(_ context.Context, name string, _ int64, tags map[string]string) {
	r.counters = append(r.counters, counterCall{name: name, tags: tags})
}

func (r *capturingRecorder) ObserveHistogram(_ context.Context, _ string, value float64, _ map[string]string) {
	r.histograms = append(r.histograms, value)
}
