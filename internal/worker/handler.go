package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DikoMolly/chekins/internal/logger"
	"github.com/DikoMolly/chekins/internal/media"
	"github.com/DikoMolly/chekins/internal/metrics"
	"github.com/DikoMolly/chekins/internal/notify"
	"github.com/DikoMolly/chekins/internal/postmedia"
	"github.com/DikoMolly/chekins/internal/queue"
)

// MediaProcessor transforms one media file and returns the stored assets.
type MediaProcessor interface {
	Process(ctx context.Context, filePath, folder string) (*media.Result, error)
}

// Dependencies wires the media job handler to its collaborators.
type Dependencies struct {
	Posts  postmedia.PostStore
	Media  MediaProcessor
	Alerts notify.Alerter
}

// ProcessMediaHandler processes one media file of a post and records the
// outcome on the post. Transient failures are returned plainly so the
// pool retries them; permanent ones are marked and fail immediately.
func ProcessMediaHandler(deps *Dependencies) queue.Handler {
	return func(ctx context.Context, j *queue.Job) error {
		log := logger.FromContext(ctx).With("job_id", j.ID)
		start := time.Now()

		var payload MediaJobPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("undecodable media job payload", "error", err)
			return queue.Permanent(fmt.Errorf("decode payload: %w", err))
		}
		log = log.With("post_id", payload.PostID, "media_index", payload.MediaIndex)

		// Best-effort status write; the job result is the source of truth.
		if err := deps.Posts.MarkMediaProcessing(ctx, payload.PostID, payload.MediaIndex); err != nil {
			log.Warn("failed to mark media processing", "error", err)
		}
		j.ReportProgress(10)

		result, err := deps.Media.Process(ctx, payload.FilePath, payload.Folder)
		if err != nil {
			if Classify(err) == ClassPermanent {
				log.Error("permanent media processing failure", "error", err)
				if ferr := deps.Posts.FailMediaItem(ctx, payload.PostID, payload.MediaIndex, err.Error()); ferr != nil {
					log.Warn("failed to record media failure", "error", ferr)
				}
				metrics.RecordMediaProcessed("permanent_failure")
				return queue.Permanent(fmt.Errorf("process media: %w", err))
			}
			log.Warn("transient media processing failure",
				"error", err, "attempt", j.Attempts, "max_attempts", j.MaxAttempts)
			return fmt.Errorf("process media: %w", err)
		}
		j.ReportProgress(70)

		err = deps.Posts.CompleteMediaItem(ctx, payload.PostID, payload.MediaIndex, postmedia.CompletedMedia{
			URL:        result.URL,
			StorageID:  result.StorageID,
			PreviewURL: result.PreviewURL,
		})
		if errors.Is(err, postmedia.ErrPostNotFound) || errors.Is(err, postmedia.ErrMediaIndexNotFound) {
			// The post went away mid-flight. The asset stays in storage;
			// the job itself did its work.
			log.Warn("post or media item gone, discarding result", "error", err)
			metrics.RecordMediaProcessed("discarded")
			return nil
		}
		if err != nil {
			log.Error("failed to persist processed media", "error", err)
			return fmt.Errorf("update post media: %w", err)
		}
		j.ReportProgress(100)

		metrics.RecordMediaProcessed("success")
		log.Info("media job completed",
			"media_type", result.Type,
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	}
}

// FinalFailureHandler runs when a media job fails with all attempts
// consumed: it alerts an administrator and marks the media item failed.
// Both writes are best-effort and idempotent.
func FinalFailureHandler(deps *Dependencies) queue.FinalFailureHandler {
	return func(ctx context.Context, j *queue.Job, jobErr error) {
		log := logger.Default().With("job_id", j.ID)

		var payload MediaJobPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("final failure with undecodable payload", "error", err)
			return
		}
		log = log.With("post_id", payload.PostID, "media_index", payload.MediaIndex)

		reason := "media processing failed after all retry attempts"
		if jobErr != nil {
			reason = jobErr.Error()
		}

		if deps.Alerts != nil {
			subject := "Media processing failed"
			message := fmt.Sprintf(
				"Job %s for post %s (media %d) failed after %d attempts.\n\nLast error: %s",
				j.ID, payload.PostID, payload.MediaIndex, j.Attempts, reason)
			if err := deps.Alerts.SendAdminAlert(ctx, subject, message); err != nil {
				log.Warn("failed to send admin alert", "error", err)
				metrics.RecordAdminAlert("error")
			} else {
				metrics.RecordAdminAlert("sent")
			}
		}

		if err := deps.Posts.FailMediaItem(ctx, payload.PostID, payload.MediaIndex, reason); err != nil {
			if errors.Is(err, postmedia.ErrPostNotFound) || errors.Is(err, postmedia.ErrMediaIndexNotFound) {
				log.Warn("post gone before final failure could be recorded", "error", err)
				return
			}
			log.Error("failed to record final media failure", "error", err)
			return
		}
		log.Info("media item marked failed after exhausting retries", "attempts", j.Attempts)
	}
}
