package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DikoMolly/chekins/internal/queue"
)

func TestMediaJobPayloadJobID(t *testing.T) {
	p := MediaJobPayload{PostID: "42", MediaIndex: 3}
	if got := p.JobID(); got != "post-42-media-3" {
		t.Errorf("JobID() = %s, want post-42-media-3", got)
	}
}

func TestEnqueueMediaUsesDeterministicID(t *testing.T) {
	enq := &recordingEnqueuer{}
	payload := MediaJobPayload{FilePath: "/tmp/a.jpg", PostID: "42", MediaIndex: 0}

	j, err := EnqueueMedia(context.Background(), enq, payload)
	if err != nil {
		t.Fatalf("EnqueueMedia failed: %v", err)
	}
	if j.ID != "post-42-media-0" {
		t.Errorf("expected deterministic id, got %s", j.ID)
	}
	if j.Type != JobTypeProcessMedia {
		t.Errorf("expected %s job, got %s", JobTypeProcessMedia, j.Type)
	}
}

func TestEnqueueMediaIsIdempotent(t *testing.T) {
	store := queue.NewMemoryStore()
	mgr := queue.NewManager(store)
	q := mgr.CreateQueue(QueueName)
	ctx := context.Background()

	payload := MediaJobPayload{FilePath: "/tmp/a.jpg", PostID: "42", MediaIndex: 0}
	if _, err := EnqueueMedia(ctx, q, payload); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if _, err := EnqueueMedia(ctx, q, payload); err != nil {
		t.Fatalf("duplicate enqueue must be a no-op, got: %v", err)
	}

	stats, err := store.Stats(ctx, QueueName)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Waiting != 1 {
		t.Errorf("expected 1 waiting job, got %d", stats.Waiting)
	}
}

func TestSubmitBatchPartitionsAndIndexes(t *testing.T) {
	enq := &recordingEnqueuer{}
	files := []string{"a.jpg", "clip.mp4", "b.png", "c.jpg", "d.jpg", "other.mov"}

	if err := SubmitBatch(context.Background(), enq, "post-7", "chekins_posts", files); err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}
	if len(enq.jobs) != len(files) {
		t.Fatalf("expected %d jobs, got %d", len(files), len(enq.jobs))
	}

	// Media indexes must match positions in the original file list.
	byID := make(map[string]MediaJobPayload)
	for _, j := range enq.jobs {
		var p MediaJobPayload
		if err := j.UnmarshalPayload(&p); err != nil {
			t.Fatalf("UnmarshalPayload failed: %v", err)
		}
		byID[j.ID] = p
	}
	wantIndexes := map[string]int{
		"a.jpg": 0, "clip.mp4": 1, "b.png": 2, "c.jpg": 3, "d.jpg": 4, "other.mov": 5,
	}
	for file, wantIdx := range wantIndexes {
		found := false
		for _, p := range byID {
			if p.FilePath == file {
				found = true
				if p.MediaIndex != wantIdx {
					t.Errorf("%s: expected index %d, got %d", file, wantIdx, p.MediaIndex)
				}
				if p.PostID != "post-7" || p.Folder != "chekins_posts" {
					t.Errorf("%s: unexpected payload %+v", file, p)
				}
			}
		}
		if !found {
			t.Errorf("no job enqueued for %s", file)
		}
	}

	// Videos are submitted after all images.
	var order []string
	for _, j := range enq.jobs {
		var p MediaJobPayload
		_ = j.UnmarshalPayload(&p)
		order = append(order, p.FilePath)
	}
	lastImage, firstVideo := -1, len(order)
	for i, f := range order {
		switch f {
		case "clip.mp4", "other.mov":
			if i < firstVideo {
				firstVideo = i
			}
		default:
			if i > lastImage {
				lastImage = i
			}
		}
	}
	if lastImage > firstVideo {
		t.Errorf("videos must be enqueued after images, got order %v", order)
	}

	// Videos keep their input order relative to each other.
	videoOrder := make([]string, 0, 2)
	for _, f := range order {
		if f == "clip.mp4" || f == "other.mov" {
			videoOrder = append(videoOrder, f)
		}
	}
	if len(videoOrder) != 2 || videoOrder[0] != "clip.mp4" || videoOrder[1] != "other.mov" {
		t.Errorf("unexpected video order: %v", videoOrder)
	}
}

func TestSubmitBatchPropagatesEnqueueError(t *testing.T) {
	enq := &recordingEnqueuer{err: errors.New("redis connection refused")}
	err := SubmitBatch(context.Background(), enq, "post-7", "chekins_posts", []string{"a.jpg"})
	if err == nil {
		t.Fatal("expected enqueue error to propagate")
	}
}

func TestSubmitBatchEmpty(t *testing.T) {
	enq := &recordingEnqueuer{}
	if err := SubmitBatch(context.Background(), enq, "post-7", "chekins_posts", nil); err != nil {
		t.Errorf("empty batch must succeed, got %v", err)
	}
	if len(enq.jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(enq.jobs))
	}
}

func TestSubmitBatchThroughRealQueue(t *testing.T) {
	store := queue.NewMemoryStore()
	mgr := queue.NewManager(store)
	q := mgr.CreateQueue(QueueName, queue.WithBackoff(time.Second))
	ctx := context.Background()

	files := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "clip.mp4"}
	if err := SubmitBatch(ctx, q, "post-9", "chekins_posts", files); err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}

	stats, err := store.Stats(ctx, QueueName)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Waiting != int64(len(files)) {
		t.Errorf("expected %d waiting jobs, got %d", len(files), stats.Waiting)
	}

	// Resubmitting the same batch must not duplicate anything.
	if err := SubmitBatch(ctx, q, "post-9", "chekins_posts", files); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	stats, _ = store.Stats(ctx, QueueName)
	if stats.Waiting != int64(len(files)) {
		t.Errorf("resubmit must be idempotent, got %d waiting", stats.Waiting)
	}
}
