package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MetricsCollector receives job lifecycle events from a Pool. Implementations
// must be safe for concurrent use.
type MetricsCollector interface {
	JobStarted(jobType, queue string)
	JobCompleted(jobType, queue string, duration time.Duration)
	JobFailed(jobType, queue string, duration time.Duration)
	JobRetrying(jobType, queue string, attempt int)
}

// Hooks are optional callbacks invoked from worker goroutines. OnFailed
// fires once per terminal failure, never per retry.
type Hooks struct {
	OnCompleted func(j *Job)
	OnFailed    func(j *Job, err error)
	OnProgress  func(j *Job, percent int)
	OnRetrying  func(j *Job, delay time.Duration)
}

// Pool runs registered handlers over jobs dequeued from a set of queues.
// It owns the retry decision: a plain handler error delays the job with
// exponential backoff until attempts are exhausted, a Permanent error
// fails it immediately.
type Pool struct {
	store           Store
	registry        *Registry
	queues          []string
	concurrency     int
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	log             zerolog.Logger
	metrics         MetricsCollector
	hooks           Hooks

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type PoolOption func(*Pool)

func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithQueues(queues ...string) PoolOption {
	return func(p *Pool) {
		if len(queues) > 0 {
			p.queues = queues
		}
	}
}

func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}

func WithPoolLogger(log zerolog.Logger) PoolOption {
	return func(p *Pool) { p.log = log }
}

func WithPoolMetrics(m MetricsCollector) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

func WithHooks(h Hooks) PoolOption {
	return func(p *Pool) { p.hooks = h }
}

func NewPool(store Store, registry *Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		store:           store,
		registry:        registry,
		queues:          []string{"default"},
		concurrency:     4,
		pollInterval:    time.Second,
		shutdownTimeout: 30 * time.Second,
		log:             zerolog.Nop(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the pool until ctx is cancelled or Stop is called, then
// waits for in-flight jobs to finish.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info().
		Int("concurrency", p.concurrency).
		Strs("queues", p.queues).
		Msg("worker pool starting")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	p.wg.Add(1)
	go p.runPromoter(ctx)

	select {
	case <-ctx.Done():
	case <-p.stopCh:
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info().Msg("worker pool stopped")
		return nil
	case <-time.After(p.shutdownTimeout):
		return fmt.Errorf("worker pool shutdown timed out after %s", p.shutdownTimeout)
	}
}

// Stop signals the pool to drain and waits for workers, bounded by ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		for _, queueName := range p.queues {
			j, err := p.store.Dequeue(ctx, queueName, p.pollInterval)
			if errors.Is(err, ErrNoJob) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Error().Err(err).Int("worker", id).Str("queue", queueName).Msg("dequeue failed")
				time.Sleep(p.pollInterval)
				continue
			}
			p.process(ctx, j)
		}
	}
}

// runPromoter periodically moves due delayed jobs back onto waiting lists.
func (p *Pool) runPromoter(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			for _, queueName := range p.queues {
				if _, err := p.store.PromoteDue(ctx, queueName, time.Now()); err != nil && ctx.Err() == nil {
					p.log.Error().Err(err).Str("queue", queueName).Msg("promote delayed jobs failed")
				}
			}
		}
	}
}

func (p *Pool) process(ctx context.Context, j *Job) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.JobStarted(j.Type, j.Queue)
	}

	var err error
	handler, ok := p.registry.Resolve(j.Type)
	if !ok {
		err = Permanent(fmt.Errorf("no handler registered for job type %q", j.Type))
	} else {
		j.progress = func(percent int) {
			if p.hooks.OnProgress != nil {
				p.hooks.OnProgress(j, percent)
			}
		}
		err = handler(ctx, j)
		j.progress = nil
	}

	// Store finalization must survive shutdown cancellation.
	storeCtx := context.WithoutCancel(ctx)

	if err == nil {
		if cerr := p.store.Complete(storeCtx, j); cerr != nil {
			p.log.Error().Err(cerr).Str("job_id", j.ID).Msg("failed to mark job completed")
		}
		j.Status = StatusCompleted
		if p.metrics != nil {
			p.metrics.JobCompleted(j.Type, j.Queue, time.Since(start))
		}
		if p.hooks.OnCompleted != nil {
			p.hooks.OnCompleted(j)
		}
		return
	}

	j.LastError = err.Error()

	if !IsPermanent(err) && j.Attempts < j.MaxAttempts {
		delay := j.NextBackoff()
		if derr := p.store.Delay(storeCtx, j, time.Now().Add(delay)); derr != nil {
			p.log.Error().Err(derr).Str("job_id", j.ID).Msg("failed to schedule retry")
		}
		if p.metrics != nil {
			p.metrics.JobRetrying(j.Type, j.Queue, j.Attempts)
		}
		if p.hooks.OnRetrying != nil {
			p.hooks.OnRetrying(j, delay)
		}
		return
	}

	if ferr := p.store.Fail(storeCtx, j, err.Error()); ferr != nil {
		p.log.Error().Err(ferr).Str("job_id", j.ID).Msg("failed to mark job failed")
	}
	j.Status = StatusFailed
	if p.metrics != nil {
		p.metrics.JobFailed(j.Type, j.Queue, time.Since(start))
	}
	if p.hooks.OnFailed != nil {
		p.hooks.OnFailed(j, err)
	}
}
