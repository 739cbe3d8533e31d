package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateJob is returned by Enqueue when a job with the same id
	// already exists in the store.
	ErrDuplicateJob = errors.New("queue: duplicate job id")

	// ErrNoJob is returned by Dequeue when no job became available within
	// the blocking window.
	ErrNoJob = errors.New("queue: no job available")
)

// Stats is a read-only snapshot of a queue's job counts. It is an
// observability contract, never used for control flow.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Total     int64 `json:"total"`
}

// Store is the durable job store backing queues and worker pools.
//
// Dequeue increments the job's attempt counter and marks it active.
// Complete purges the job record; Fail retains it for inspection.
// Delay schedules a retry; PromoteDue moves due delayed jobs back to
// the waiting list.
type Store interface {
	Enqueue(ctx context.Context, j *Job) error
	Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error)
	Complete(ctx context.Context, j *Job) error
	Fail(ctx context.Context, j *Job, reason string) error
	Delay(ctx context.Context, j *Job, runAt time.Time) error
	PromoteDue(ctx context.Context, queue string, now time.Time) (int, error)
	Stats(ctx context.Context, queue string) (*Stats, error)
	FailedJobs(ctx context.Context, queue string, limit int64) ([]*Job, error)
	Close() error
}
