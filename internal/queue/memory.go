package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and local development.
// Semantics match RedisStore: idempotent enqueue, attempt counting on
// dequeue, failed-job retention.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	waiting   map[string][]string
	delayed   map[string][]delayedEntry
	active    map[string]map[string]struct{}
	failed    map[string][]string
	completed map[string]int64
}

type delayedEntry struct {
	id    string
	runAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*Job),
		waiting:   make(map[string][]string),
		delayed:   make(map[string][]delayedEntry),
		active:    make(map[string]map[string]struct{}),
		failed:    make(map[string][]string),
		completed: make(map[string]int64),
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return ErrDuplicateJob
	}
	stored := *j
	s.jobs[j.ID] = &stored
	s.waiting[j.Queue] = append(s.waiting[j.Queue], j.ID)
	return nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error) {
	deadline := time.Now().Add(block)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if j := s.tryDequeue(queue); j != nil {
			return j, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNoJob
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *MemoryStore) tryDequeue(queue string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.waiting[queue]
	if len(ids) == 0 {
		return nil
	}
	id := ids[0]
	s.waiting[queue] = ids[1:]

	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Attempts++
	j.Status = StatusActive
	if s.active[queue] == nil {
		s.active[queue] = make(map[string]struct{})
	}
	s.active[queue][id] = struct{}{}

	out := *j
	return &out
}

func (s *MemoryStore) Complete(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, j.ID)
	delete(s.active[j.Queue], j.ID)
	s.completed[j.Queue]++
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, j *Job, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active[j.Queue], j.ID)
	stored, ok := s.jobs[j.ID]
	if !ok {
		stored = &Job{}
		*stored = *j
		s.jobs[j.ID] = stored
	}
	stored.Status = StatusFailed
	stored.Attempts = j.Attempts
	stored.LastError = reason
	s.failed[j.Queue] = append(s.failed[j.Queue], j.ID)
	return nil
}

func (s *MemoryStore) Delay(ctx context.Context, j *Job, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active[j.Queue], j.ID)
	if stored, ok := s.jobs[j.ID]; ok {
		stored.Status = StatusDelayed
		stored.Attempts = j.Attempts
		stored.LastError = j.LastError
	}
	s.delayed[j.Queue] = append(s.delayed[j.Queue], delayedEntry{id: j.ID, runAt: runAt})
	return nil
}

func (s *MemoryStore) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var remaining []delayedEntry
	promoted := 0
	for _, e := range s.delayed[queue] {
		if e.runAt.After(now) {
			remaining = append(remaining, e)
			continue
		}
		if j, ok := s.jobs[e.id]; ok {
			j.Status = StatusWaiting
		}
		s.waiting[queue] = append(s.waiting[queue], e.id)
		promoted++
	}
	s.delayed[queue] = remaining
	return promoted, nil
}

func (s *MemoryStore) Stats(ctx context.Context, queue string) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		Waiting:   int64(len(s.waiting[queue])),
		Active:    int64(len(s.active[queue])),
		Completed: s.completed[queue],
		Failed:    int64(len(s.failed[queue])),
		Delayed:   int64(len(s.delayed[queue])),
	}
	stats.Total = stats.Waiting + stats.Active + stats.Completed + stats.Failed + stats.Delayed
	return stats, nil
}

func (s *MemoryStore) FailedJobs(ctx context.Context, queue string, limit int64) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	ids := s.failed[queue]
	jobs := make([]*Job, 0, len(ids))
	// Newest first, matching the Redis failed list.
	for i := len(ids) - 1; i >= 0 && int64(len(jobs)) < limit; i-- {
		if j, ok := s.jobs[ids[i]]; ok {
			out := *j
			jobs = append(jobs, &out)
		}
	}
	return jobs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
