package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/DikoMolly/chekins/internal/media"
	"github.com/DikoMolly/chekins/internal/queue"
)

// Enqueuer is the queue surface batch submission needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts ...queue.JobOption) (*queue.Job, error)
}

// EnqueueMedia queues one media job under its deterministic id.
func EnqueueMedia(ctx context.Context, q Enqueuer, payload MediaJobPayload) (*queue.Job, error) {
	return q.Enqueue(ctx, JobTypeProcessMedia, payload, queue.WithJobID(payload.JobID()))
}

// imageEnqueueWindow bounds how many image jobs are submitted at once.
const imageEnqueueWindow = 3

// SubmitBatch queues processing jobs for all files of a post. Each
// file's media index is its position in files, so indexes stay stable
// however the batch is partitioned. Images are submitted in windows of
// three concurrent enqueues; videos one at a time, after the images.
func SubmitBatch(ctx context.Context, q Enqueuer, postID, folder string, files []string) error {
	type entry struct {
		path  string
		index int
	}

	var images, videos []entry
	for i, f := range files {
		if media.IsVideo(f) {
			videos = append(videos, entry{path: f, index: i})
		} else {
			images = append(images, entry{path: f, index: i})
		}
	}

	for start := 0; start < len(images); start += imageEnqueueWindow {
		end := min(start+imageEnqueueWindow, len(images))
		window := images[start:end]

		var wg sync.WaitGroup
		errs := make([]error, len(window))
		for k, e := range window {
			wg.Add(1)
			go func(k int, e entry) {
				defer wg.Done()
				_, err := EnqueueMedia(ctx, q, MediaJobPayload{
					FilePath:   e.path,
					Folder:     folder,
					PostID:     postID,
					MediaIndex: e.index,
				})
				errs[k] = err
			}(k, e)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return fmt.Errorf("enqueue image job: %w", err)
			}
		}
	}

	for _, e := range videos {
		_, err := EnqueueMedia(ctx, q, MediaJobPayload{
			FilePath:   e.path,
			Folder:     folder,
			PostID:     postID,
			MediaIndex: e.index,
		})
		if err != nil {
			return fmt.Errorf("enqueue video job: %w", err)
		}
	}
	return nil
}
