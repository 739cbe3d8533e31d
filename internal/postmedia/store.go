package postmedia

import (
	"context"
	"errors"
)

var (
	ErrPostNotFound       = errors.New("postmedia: post not found")
	ErrMediaIndexNotFound = errors.New("postmedia: media index not found")
)

// CompletedMedia carries the output of successful media processing.
type CompletedMedia struct {
	URL        string
	StorageID  string
	PreviewURL string
}

// PostStore persists posts and their media processing state.
//
// CompleteMediaItem and FailMediaItem are idempotent: repeating either
// for an item already in that terminal state changes nothing, and the
// post counters are incremented exactly once per item. Counter updates
// are atomic; concurrent workers never lose increments.
type PostStore interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)

	// MarkMediaProcessing sets the item to processing and increments its
	// attempt counter in one update. It also moves a pending post to
	// processing.
	MarkMediaProcessing(ctx context.Context, postID string, index int) error

	CompleteMediaItem(ctx context.Context, postID string, index int, result CompletedMedia) error
	FailMediaItem(ctx context.Context, postID string, index int, reason string) error
}
