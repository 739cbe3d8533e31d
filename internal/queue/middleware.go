package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: the job fails immediately with
// attempts left on the table. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// RecoveryMiddleware converts handler panics into permanent failures.
// A panicking handler is a bug, not a transient condition.
func RecoveryMiddleware(log zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *Job) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("job_id", j.ID).
						Str("job_type", j.Type).
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("job handler panicked")
					err = Permanent(fmt.Errorf("handler panic: %v", r))
				}
			}()
			return next(ctx, j)
		}
	}
}

// LoggingMiddleware logs job start and outcome with duration.
func LoggingMiddleware(log zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *Job) error {
			start := time.Now()
			log.Info().
				Str("job_id", j.ID).
				Str("job_type", j.Type).
				Str("queue", j.Queue).
				Int("attempt", j.Attempts).
				Msg("job started")

			err := next(ctx, j)
			elapsed := time.Since(start)
			if err != nil {
				log.Warn().
					Str("job_id", j.ID).
					Str("job_type", j.Type).
					Dur("duration", elapsed).
					Bool("permanent", IsPermanent(err)).
					Err(err).
					Msg("job failed")
				return err
			}
			log.Info().
				Str("job_id", j.ID).
				Str("job_type", j.Type).
				Dur("duration", elapsed).
				Msg("job completed")
			return nil
		}
	}
}

// TimeoutMiddleware bounds handler execution time.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *Job) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, j)
		}
	}
}
