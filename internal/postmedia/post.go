package postmedia

import "time"

// MediaType distinguishes processing pipelines for an attached file.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

func (t MediaType) Valid() bool {
	return t == MediaImage || t == MediaVideo
}

// ProcessingStatus tracks a media item or a post through the pipeline.
// Items move pending -> processing -> completed|failed; completed and
// failed are terminal and transitions into them are idempotent.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MediaItem is one attachment of a post, addressed by its index in the
// post's media list.
type MediaItem struct {
	Type               MediaType        `json:"type"`
	URL                string           `json:"url"`
	StorageID          string           `json:"storage_id"`
	PreviewURL         string           `json:"preview_url"`
	ProcessingStatus   ProcessingStatus `json:"processing_status"`
	ProcessingError    string           `json:"processing_error,omitempty"`
	ProcessingAttempts int              `json:"processing_attempts"`
}

// Post aggregates media items. The counters converge regardless of the
// order item outcomes arrive in: once processed + failed reaches total,
// the post settles into completed (no failures) or failed (any failure).
type Post struct {
	ID                  string           `json:"id"`
	Media               []MediaItem      `json:"media"`
	ProcessingStatus    ProcessingStatus `json:"processing_status"`
	ProcessedMediaCount int              `json:"processed_media_count"`
	FailedMediaCount    int              `json:"failed_media_count"`
	TotalMediaCount     int              `json:"total_media_count"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Settled reports whether every media item reached a terminal state.
func (p *Post) Settled() bool {
	return p.ProcessedMediaCount+p.FailedMediaCount >= p.TotalMediaCount
}
