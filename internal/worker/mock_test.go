package worker

import (
	"context"
	"sync"

	"github.com/DikoMolly/chekins/internal/media"
	"github.com/DikoMolly/chekins/internal/queue"
)

// mockProcessor scripts media processing outcomes per call.
type mockProcessor struct {
	mu      sync.Mutex
	calls   int
	results []processResult
}

type processResult struct {
	result *media.Result
	err    error
}

func (m *mockProcessor) Process(ctx context.Context, filePath, folder string) (*media.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	r := m.results[idx]
	return r.result, r.err
}

func (m *mockProcessor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockAlerter records admin alerts.
type mockAlerter struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (m *mockAlerter) SendAdminAlert(ctx context.Context, subject, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockAlerter) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

// recordingEnqueuer captures enqueued jobs in submission order.
type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, jobType string, payload any, opts ...queue.JobOption) (*queue.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	j, err := queue.New(QueueName, jobType, payload, opts...)
	if err != nil {
		return nil, err
	}
	r.jobs = append(r.jobs, j)
	return j, nil
}
