package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type (
	// CompletedHandler observes successful job completions.
	CompletedHandler func(j *Job)
	// FailedHandler observes terminal job failures. It fires once per
	// failed job, after retries are exhausted or a permanent error.
	FailedHandler func(j *Job, err error)
	// ProgressHandler observes advisory progress reports.
	ProgressHandler func(j *Job, percent int)
	// FinalFailureHandler runs when a job fails with all attempts
	// consumed. It is the place for alerting and terminal-state writes.
	FinalFailureHandler func(ctx context.Context, j *Job, err error)
)

// Manager ties queues, worker pools and lifecycle listeners to a single
// job store.
type Manager struct {
	store   Store
	log     zerolog.Logger
	metrics MetricsCollector

	mu             sync.Mutex
	queues         map[string]*Queue
	pools          map[string]*Pool
	onCompleted    map[string][]CompletedHandler
	onFailed       map[string][]FailedHandler
	onProgress     map[string][]ProgressHandler
	onFinalFailure map[string][]FinalFailureHandler
}

type ManagerOption func(*Manager)

func WithManagerLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

func WithManagerMetrics(c MetricsCollector) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:          store,
		log:            zerolog.Nop(),
		queues:         make(map[string]*Queue),
		pools:          make(map[string]*Pool),
		onCompleted:    make(map[string][]CompletedHandler),
		onFailed:       make(map[string][]FailedHandler),
		onProgress:     make(map[string][]ProgressHandler),
		onFinalFailure: make(map[string][]FinalFailureHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Queue enqueues jobs under one queue name with shared default options.
type Queue struct {
	name     string
	store    Store
	log      zerolog.Logger
	defaults []JobOption
}

func (q *Queue) Name() string { return q.name }

// Enqueue creates and stores a job. Enqueueing an id that already exists
// is a no-op: the original job is left untouched and no error is returned.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts ...JobOption) (*Job, error) {
	all := make([]JobOption, 0, len(q.defaults)+len(opts))
	all = append(all, q.defaults...)
	all = append(all, opts...)

	j, err := New(q.name, jobType, payload, all...)
	if err != nil {
		return nil, err
	}
	if err := q.store.Enqueue(ctx, j); err != nil {
		if errors.Is(err, ErrDuplicateJob) {
			q.log.Debug().Str("job_id", j.ID).Str("job_type", jobType).Msg("duplicate job id, enqueue skipped")
			return j, nil
		}
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	return j, nil
}

// CreateQueue returns the named queue, creating it with the given default
// job options on first use.
func (m *Manager) CreateQueue(name string, defaults ...JobOption) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		return q
	}
	q := &Queue{name: name, store: m.store, log: m.log, defaults: defaults}
	m.queues[name] = q
	return q
}

// CreateWorker builds a pool consuming the named queue, wired to the
// manager's listeners and metrics. Creating a worker for the same queue
// twice returns the original pool.
func (m *Manager) CreateWorker(name string, registry *Registry, opts ...PoolOption) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[name]; ok {
		return p
	}

	hooks := Hooks{
		OnCompleted: func(j *Job) { m.dispatchCompleted(name, j) },
		OnFailed:    func(j *Job, err error) { m.dispatchFailed(name, j, err) },
		OnProgress:  func(j *Job, percent int) { m.dispatchProgress(name, j, percent) },
	}
	poolOpts := append([]PoolOption{
		WithQueues(name),
		WithHooks(hooks),
		WithPoolLogger(m.log),
		WithPoolMetrics(m.metrics),
	}, opts...)

	p := NewPool(m.store, registry, poolOpts...)
	m.pools[name] = p
	return p
}

func (m *Manager) OnCompleted(queue string, fn CompletedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCompleted[queue] = append(m.onCompleted[queue], fn)
}

func (m *Manager) OnFailed(queue string, fn FailedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed[queue] = append(m.onFailed[queue], fn)
}

func (m *Manager) OnProgress(queue string, fn ProgressHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress[queue] = append(m.onProgress[queue], fn)
}

func (m *Manager) OnFinalFailure(queue string, fn FinalFailureHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinalFailure[queue] = append(m.onFinalFailure[queue], fn)
}

func (m *Manager) dispatchCompleted(queue string, j *Job) {
	m.mu.Lock()
	handlers := append([]CompletedHandler(nil), m.onCompleted[queue]...)
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(j)
	}
}

func (m *Manager) dispatchFailed(queue string, j *Job, err error) {
	m.mu.Lock()
	handlers := append([]FailedHandler(nil), m.onFailed[queue]...)
	var final []FinalFailureHandler
	if j.Attempts >= j.MaxAttempts {
		final = append(final, m.onFinalFailure[queue]...)
	}
	m.mu.Unlock()

	// Final-failure handlers run first so terminal-state writes and
	// alerts land before failure listeners observe the job.
	for _, fn := range final {
		fn(context.Background(), j, err)
	}
	for _, fn := range handlers {
		fn(j, err)
	}
}

func (m *Manager) dispatchProgress(queue string, j *Job, percent int) {
	m.mu.Lock()
	handlers := append([]ProgressHandler(nil), m.onProgress[queue]...)
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(j, percent)
	}
}

func (m *Manager) Stats(ctx context.Context, queue string) (*Stats, error) {
	return m.store.Stats(ctx, queue)
}

func (m *Manager) FailedJobs(ctx context.Context, queue string, limit int64) ([]*Job, error) {
	return m.store.FailedJobs(ctx, queue, limit)
}

// Close stops all pools and closes the underlying store.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
