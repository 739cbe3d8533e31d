package media

import (
	"context"
	"os"
	"time"

	"github.com/DikoMolly/chekins/internal/logger"
)

const (
	cleanupMaxRetries = 5
	cleanupBaseDelay  = 500 * time.Millisecond
)

// cleanupFiles removes local files with retries and linear backoff.
// Cleanup failures are logged, never propagated: a leftover temp file
// must not fail a processing job.
func cleanupFiles(ctx context.Context, paths []string) {
	log := logger.FromContext(ctx)

	for _, path := range paths {
		for attempt := 1; attempt <= cleanupMaxRetries; attempt++ {
			err := os.Remove(path)
			if err == nil || os.IsNotExist(err) {
				break
			}
			if attempt == cleanupMaxRetries {
				log.Warn("giving up on file cleanup",
					"file", path, "attempts", attempt, "error", err)
				break
			}
			log.Debug("file cleanup failed, retrying",
				"file", path, "attempt", attempt, "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(cleanupBaseDelay * time.Duration(attempt)):
			}
		}
	}
}

// RemoveFiles removes staged files for callers outside the pipeline,
// with the same retry behavior.
func RemoveFiles(ctx context.Context, paths ...string) {
	cleanupFiles(ctx, paths)
}
