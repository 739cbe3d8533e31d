package postmedia

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements PostStore on a pgx connection pool. All
// counter updates are single-statement increments so concurrent workers
// cannot lose updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	processing_status TEXT NOT NULL DEFAULT 'pending',
	processed_media_count INT NOT NULL DEFAULT 0,
	failed_media_count INT NOT NULL DEFAULT 0,
	total_media_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS post_media (
	post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	idx INT NOT NULL,
	media_type TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	storage_id TEXT NOT NULL DEFAULT '',
	preview_url TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL DEFAULT 'pending',
	processing_error TEXT NOT NULL DEFAULT '',
	processing_attempts INT NOT NULL DEFAULT 0,
	PRIMARY KEY (post_id, idx)
);
`

// EnsureSchema creates the backing tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure postmedia schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, post *Post) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create post: %w", err)
	}
	defer tx.Rollback(ctx)

	status := post.ProcessingStatus
	if status == "" {
		status = StatusPending
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO posts (id, processing_status, total_media_count)
		VALUES ($1, $2, $3)`,
		post.ID, status, len(post.Media))
	if err != nil {
		return fmt.Errorf("insert post %s: %w", post.ID, err)
	}

	for i, item := range post.Media {
		itemStatus := item.ProcessingStatus
		if itemStatus == "" {
			itemStatus = StatusPending
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO post_media (post_id, idx, media_type, url, storage_id, preview_url, processing_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			post.ID, i, item.Type, item.URL, item.StorageID, item.PreviewURL, itemStatus)
		if err != nil {
			return fmt.Errorf("insert media %d for post %s: %w", i, post.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*Post, error) {
	post := &Post{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT processing_status, processed_media_count, failed_media_count, total_media_count, created_at, updated_at
		FROM posts WHERE id = $1`, id).
		Scan(&post.ProcessingStatus, &post.ProcessedMediaCount, &post.FailedMediaCount,
			&post.TotalMediaCount, &post.CreatedAt, &post.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load post %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT media_type, url, storage_id, preview_url, processing_status, processing_error, processing_attempts
		FROM post_media WHERE post_id = $1 ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("load media for post %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item MediaItem
		if err := rows.Scan(&item.Type, &item.URL, &item.StorageID, &item.PreviewURL,
			&item.ProcessingStatus, &item.ProcessingError, &item.ProcessingAttempts); err != nil {
			return nil, fmt.Errorf("scan media for post %s: %w", id, err)
		}
		post.Media = append(post.Media, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media for post %s: %w", id, err)
	}
	return post, nil
}

func (s *PostgresStore) MarkMediaProcessing(ctx context.Context, postID string, index int) error {
	// Terminal items never re-enter processing; the counters count each
	// item exactly once.
	tag, err := s.pool.Exec(ctx, `
		UPDATE post_media
		SET processing_status = $3, processing_attempts = processing_attempts + 1
		WHERE post_id = $1 AND idx = $2 AND processing_status NOT IN ($4, $5)`,
		postID, index, StatusProcessing, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("mark media %s/%d processing: %w", postID, index, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingMediaError(ctx, postID, index)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE posts SET processing_status = $2, updated_at = now()
		WHERE id = $1 AND processing_status = $3`,
		postID, StatusProcessing, StatusPending)
	if err != nil {
		return fmt.Errorf("mark post %s processing: %w", postID, err)
	}
	return nil
}

func (s *PostgresStore) CompleteMediaItem(ctx context.Context, postID string, index int, result CompletedMedia) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete media: %w", err)
	}
	defer tx.Rollback(ctx)

	// First terminal outcome wins; repeats and conflicting late writes
	// are no-ops so each item is counted exactly once.
	tag, err := tx.Exec(ctx, `
		UPDATE post_media
		SET url = $3, storage_id = $4, preview_url = $5,
		    processing_status = $6, processing_error = ''
		WHERE post_id = $1 AND idx = $2 AND processing_status NOT IN ($6, $7)`,
		postID, index, result.URL, result.StorageID, result.PreviewURL, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("complete media %s/%d: %w", postID, index, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the item is gone or it already completed; only the
		// former is an error.
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit complete media: %w", err)
		}
		return s.missingMediaError(ctx, postID, index)
	}

	// The CASE reads pre-update column values, so processed + 1 is this
	// item's contribution to the settle check.
	_, err = tx.Exec(ctx, `
		UPDATE posts
		SET processed_media_count = processed_media_count + 1,
		    processing_status = CASE
		        WHEN processed_media_count + 1 + failed_media_count >= total_media_count THEN
		            CASE WHEN failed_media_count > 0 THEN 'failed' ELSE 'completed' END
		        ELSE processing_status
		    END,
		    updated_at = now()
		WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("count completed media for post %s: %w", postID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete media: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailMediaItem(ctx context.Context, postID string, index int, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail media: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE post_media
		SET processing_status = $3, processing_error = $4
		WHERE post_id = $1 AND idx = $2 AND processing_status NOT IN ($3, $5)`,
		postID, index, StatusFailed, reason, StatusCompleted)
	if err != nil {
		return fmt.Errorf("fail media %s/%d: %w", postID, index, err)
	}
	if tag.RowsAffected() == 0 {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit fail media: %w", err)
		}
		return s.missingMediaError(ctx, postID, index)
	}

	_, err = tx.Exec(ctx, `
		UPDATE posts
		SET failed_media_count = failed_media_count + 1,
		    processing_status = CASE
		        WHEN processed_media_count + failed_media_count + 1 >= total_media_count THEN 'failed'
		        ELSE processing_status
		    END,
		    updated_at = now()
		WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("count failed media for post %s: %w", postID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fail media: %w", err)
	}
	return nil
}

// missingMediaError returns nil when the item exists (the update was an
// idempotent no-op) and the appropriate sentinel otherwise.
func (s *PostgresStore) missingMediaError(ctx context.Context, postID string, index int) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM post_media WHERE post_id = $1 AND idx = $2)`,
		postID, index).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check media %s/%d: %w", postID, index, err)
	}
	if exists {
		return nil
	}
	return s.missingError(ctx, postID)
}

func (s *PostgresStore) missingError(ctx context.Context, postID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check post %s: %w", postID, err)
	}
	if exists {
		return ErrMediaIndexNotFound
	}
	return ErrPostNotFound
}
