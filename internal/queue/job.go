package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job inside the store.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusFailed, StatusDelayed:
		return true
	}
	return false
}

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 5 * time.Second
)

// Job is one unit of queued asynchronous work. Completed jobs are purged
// from the store; failed jobs are retained for inspection.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	BackoffBase time.Duration   `json:"backoff_base"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`

	progress func(percent int)
}

type JobOption func(*Job)

// WithJobID overrides the generated id. Deterministic ids make enqueueing
// idempotent: a duplicate id never produces a second queue entry.
func WithJobID(id string) JobOption {
	return func(j *Job) { j.ID = id }
}

func WithMaxAttempts(n int) JobOption {
	return func(j *Job) { j.MaxAttempts = n }
}

// WithBackoff sets the base delay for exponential retry backoff.
func WithBackoff(base time.Duration) JobOption {
	return func(j *Job) { j.BackoffBase = base }
}

func New(queueName, jobType string, payload any, opts ...JobOption) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	j := &Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Type:        jobType,
		Payload:     data,
		Status:      StatusWaiting,
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		EnqueuedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *Job) UnmarshalPayload(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// NextBackoff returns the delay before the next retry: base * 2^(attempts-1).
// Non-decreasing in the attempt number.
func (j *Job) NextBackoff() time.Duration {
	attempt := j.Attempts
	if attempt < 1 {
		attempt = 1
	}
	return j.BackoffBase << (attempt - 1)
}

// ReportProgress publishes an advisory progress percentage. It is a no-op
// outside of pool execution and never affects job outcome.
func (j *Job) ReportProgress(percent int) {
	if j.progress != nil {
		j.progress(percent)
	}
}
