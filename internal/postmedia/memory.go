package postmedia

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process PostStore for tests and local development.
// It mirrors PostgresStore semantics: terminal item states are immutable
// and the post counters count each item exactly once.
type MemoryStore struct {
	mu    sync.Mutex
	posts map[string]*Post
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: make(map[string]*Post)}
}

func (s *MemoryStore) CreatePost(ctx context.Context, post *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; exists {
		return fmt.Errorf("postmedia: post %s already exists", post.ID)
	}

	stored := *post
	stored.Media = make([]MediaItem, len(post.Media))
	copy(stored.Media, post.Media)
	for i := range stored.Media {
		if stored.Media[i].ProcessingStatus == "" {
			stored.Media[i].ProcessingStatus = StatusPending
		}
	}
	if stored.ProcessingStatus == "" {
		stored.ProcessingStatus = StatusPending
	}
	stored.TotalMediaCount = len(stored.Media)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.posts[post.ID] = &stored
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id string) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}

	out := *post
	out.Media = make([]MediaItem, len(post.Media))
	copy(out.Media, post.Media)
	return &out, nil
}

func (s *MemoryStore) MarkMediaProcessing(ctx context.Context, postID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.item(postID, index)
	if err != nil {
		return err
	}
	if item.ProcessingStatus.Terminal() {
		return nil
	}
	item.ProcessingStatus = StatusProcessing
	item.ProcessingAttempts++

	post := s.posts[postID]
	if post.ProcessingStatus == StatusPending {
		post.ProcessingStatus = StatusProcessing
	}
	post.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CompleteMediaItem(ctx context.Context, postID string, index int, result CompletedMedia) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.item(postID, index)
	if err != nil {
		return err
	}
	if item.ProcessingStatus.Terminal() {
		return nil
	}

	item.URL = result.URL
	item.StorageID = result.StorageID
	item.PreviewURL = result.PreviewURL
	item.ProcessingStatus = StatusCompleted
	item.ProcessingError = ""

	post := s.posts[postID]
	post.ProcessedMediaCount++
	s.settle(post)
	return nil
}

func (s *MemoryStore) FailMediaItem(ctx context.Context, postID string, index int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.item(postID, index)
	if err != nil {
		return err
	}
	if item.ProcessingStatus.Terminal() {
		return nil
	}

	item.ProcessingStatus = StatusFailed
	item.ProcessingError = reason

	post := s.posts[postID]
	post.FailedMediaCount++
	s.settle(post)
	return nil
}

// settle moves the post into its aggregate terminal state once every
// item has a terminal outcome.
func (s *MemoryStore) settle(post *Post) {
	post.UpdatedAt = time.Now().UTC()
	if !post.Settled() {
		return
	}
	if post.FailedMediaCount > 0 {
		post.ProcessingStatus = StatusFailed
		return
	}
	post.ProcessingStatus = StatusCompleted
}

func (s *MemoryStore) item(postID string, index int) (*MediaItem, error) {
	post, ok := s.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	if index < 0 || index >= len(post.Media) {
		return nil, ErrMediaIndexNotFound
	}
	return &post.Media[index], nil
}
