package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startTestPool(t *testing.T, store Store, reg *Registry, hooks Hooks) context.CancelFunc {
	t.Helper()

	p := NewPool(store, reg,
		WithQueues("test"),
		WithConcurrency(1),
		WithPollInterval(5*time.Millisecond),
		WithHooks(hooks),
	)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("pool exited with error: %v", err)
		}
	}()
	return cancel
}

func enqueueTestJob(t *testing.T, store Store, jobType string, opts ...JobOption) *Job {
	t.Helper()

	j, err := New("test", jobType, map[string]string{"k": "v"}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return j
}

func waitForJob(t *testing.T, ch <-chan *Job) *Job {
	t.Helper()

	select {
	case j := <-ch:
		return j
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job event")
		return nil
	}
}

func TestPoolCompletesJob(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry()
	var calls int32
	if err := reg.Register("noop", func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	completed := make(chan *Job, 1)
	cancel := startTestPool(t, store, reg, Hooks{
		OnCompleted: func(j *Job) { completed <- j },
	})
	defer cancel()

	enqueueTestJob(t, store, "noop")
	j := waitForJob(t, completed)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 handler call, got %d", got)
	}
	if j.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", j.Attempts)
	}

	stats, err := store.Stats(context.Background(), "test")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", stats.Completed)
	}
	if stats.Failed != 0 || stats.Waiting != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPoolPermanentErrorFailsWithoutRetry(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry()
	var calls int32
	if err := reg.Register("broken", func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("corrupt file"))
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	failed := make(chan *Job, 1)
	cancel := startTestPool(t, store, reg, Hooks{
		OnFailed: func(j *Job, err error) { failed <- j },
	})
	defer cancel()

	enqueueTestJob(t, store, "broken")
	j := waitForJob(t, failed)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("permanent failure must not retry, got %d calls", got)
	}
	if j.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", j.Attempts)
	}

	jobs, err := store.FailedJobs(context.Background(), "test", 10)
	if err != nil {
		t.Fatalf("FailedJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 retained failed job, got %d", len(jobs))
	}
	if jobs[0].LastError != "corrupt file" {
		t.Errorf("unexpected last error: %s", jobs[0].LastError)
	}
}

func TestPoolRetriesTransientError(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry()
	var calls int32
	if err := reg.Register("flaky", func(ctx context.Context, j *Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("network timeout")
		}
		return nil
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	completed := make(chan *Job, 1)
	var retries int32
	cancel := startTestPool(t, store, reg, Hooks{
		OnCompleted: func(j *Job) { completed <- j },
		OnRetrying:  func(j *Job, delay time.Duration) { atomic.AddInt32(&retries, 1) },
	})
	defer cancel()

	enqueueTestJob(t, store, "flaky", WithBackoff(time.Millisecond))
	j := waitForJob(t, completed)

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 handler calls, got %d", got)
	}
	if got := atomic.LoadInt32(&retries); got != 2 {
		t.Errorf("expected 2 retry events, got %d", got)
	}
	if j.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", j.Attempts)
	}
}

func TestPoolExhaustsAttempts(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry()
	var calls int32
	if err := reg.Register("doomed", func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("connection reset")
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	failed := make(chan *Job, 2)
	var failures int32
	cancel := startTestPool(t, store, reg, Hooks{
		OnFailed: func(j *Job, err error) {
			atomic.AddInt32(&failures, 1)
			failed <- j
		},
	})
	defer cancel()

	enqueueTestJob(t, store, "doomed", WithBackoff(time.Millisecond))
	j := waitForJob(t, failed)

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 handler calls, got %d", got)
	}
	if j.Attempts != j.MaxAttempts {
		t.Errorf("expected attempts %d to equal max, got %d", j.MaxAttempts, j.Attempts)
	}

	// Give the pool a moment to prove no extra failure events arrive.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&failures); got != 1 {
		t.Errorf("failed hook must fire exactly once, got %d", got)
	}
}

func TestPoolProgressReports(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry()
	if err := reg.Register("progress", func(ctx context.Context, j *Job) error {
		j.ReportProgress(10)
		j.ReportProgress(70)
		j.ReportProgress(100)
		return nil
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	completed := make(chan *Job, 1)
	var reports []int
	cancel := startTestPool(t, store, reg, Hooks{
		OnCompleted: func(j *Job) { completed <- j },
		OnProgress:  func(j *Job, percent int) { reports = append(reports, percent) },
	})
	defer cancel()

	enqueueTestJob(t, store, "progress")
	waitForJob(t, completed)

	want := []int{10, 70, 100}
	if len(reports) != len(want) {
		t.Fatalf("expected %d progress reports, got %v", len(want), reports)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Errorf("report %d: expected %d, got %d", i, want[i], reports[i])
		}
	}
}

func TestPoolUnknownJobTypeFailsPermanently(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry()

	failed := make(chan *Job, 1)
	var failErr error
	cancel := startTestPool(t, store, reg, Hooks{
		OnFailed: func(j *Job, err error) {
			failErr = err
			failed <- j
		},
	})
	defer cancel()

	enqueueTestJob(t, store, "unregistered")
	j := waitForJob(t, failed)

	if j.Attempts != 1 {
		t.Errorf("expected no retries for unknown type, got %d attempts", j.Attempts)
	}
	if !IsPermanent(failErr) {
		t.Errorf("expected permanent failure, got %v", failErr)
	}
}

func TestMemoryStoreDuplicateEnqueue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j1, _ := New("test", "noop", nil, WithJobID("post-1-media-0"))
	if err := store.Enqueue(ctx, j1); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	j2, _ := New("test", "noop", nil, WithJobID("post-1-media-0"))
	if err := store.Enqueue(ctx, j2); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("expected ErrDuplicateJob, got %v", err)
	}

	stats, _ := store.Stats(ctx, "test")
	if stats.Waiting != 1 {
		t.Errorf("expected 1 waiting job, got %d", stats.Waiting)
	}
}

func TestMemoryStoreDelayAndPromote(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j, _ := New("test", "noop", nil)
	if err := store.Enqueue(ctx, j); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	got, err := store.Dequeue(ctx, "test", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if err := store.Delay(ctx, got, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Delay failed: %v", err)
	}

	// Not due yet.
	n, err := store.PromoteDue(ctx, "test", time.Now())
	if err != nil {
		t.Fatalf("PromoteDue failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 promoted, got %d", n)
	}

	n, err = store.PromoteDue(ctx, "test", time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PromoteDue failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 promoted, got %d", n)
	}

	again, err := store.Dequeue(ctx, "test", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue after promote failed: %v", err)
	}
	if again.Attempts != 2 {
		t.Errorf("expected attempt counter carried over, got %d", again.Attempts)
	}
}
