package worker

import "fmt"

const (
	// QueueName is the queue all media jobs go through.
	QueueName = "media-processing"

	// JobTypeProcessMedia processes one media file of a post.
	JobTypeProcessMedia = "process_media"
)

// MediaJobPayload addresses one media file of a post. MediaIndex is the
// item's position in the post's media list.
type MediaJobPayload struct {
	FilePath   string `json:"file_path"`
	Folder     string `json:"folder"`
	PostID     string `json:"post_id"`
	MediaIndex int    `json:"media_index"`
}

// JobID returns the deterministic job id for this payload. Enqueueing
// the same post/index pair twice is a no-op.
func (p MediaJobPayload) JobID() string {
	return fmt.Sprintf("post-%s-media-%d", p.PostID, p.MediaIndex)
}
