package assets

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// MinIOStore implements Store on a MinIO (or any S3-compatible) bucket.
type MinIOStore struct {
	client *minio.Client
	cfg    Config
}

func NewMinIOStore(cfg Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the configured bucket when it does not exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

func (s *MinIOStore) Upload(ctx context.Context, localPath, folder string) (*Asset, error) {
	ext := strings.ToLower(filepath.Ext(localPath))
	key := path.Join(folder, uuid.NewString()+ext)

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.client.FPutObject(ctx, s.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return nil, fmt.Errorf("upload %s: %w", localPath, err)
	}

	return &Asset{URL: s.objectURL(key), StorageID: key}, nil
}

func (s *MinIOStore) Delete(ctx context.Context, storageID string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, storageID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", storageID, err)
	}
	return nil
}

func (s *MinIOStore) objectURL(key string) string {
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, key)
}
