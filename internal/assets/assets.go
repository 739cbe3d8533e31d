// Package assets stores processed media files in object storage and
// hands back public URLs.
package assets

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("assets: object not found")

// Asset identifies one stored object.
type Asset struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
}

// Store uploads local files into folders of the media bucket and deletes
// them by storage id.
type Store interface {
	Upload(ctx context.Context, localPath, folder string) (*Asset, error)
	Delete(ctx context.Context, storageID string) error
}
