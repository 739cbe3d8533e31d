package assets

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
)

// MemoryStore is an in-process Store for tests. Uploads are recorded by
// folder and the returned URLs are synthetic.
type MemoryStore struct {
	mu      sync.Mutex
	seq     int
	objects map[string]string // storage id -> source path

	UploadErr error
	DeleteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]string)}
}

func (s *MemoryStore) Upload(ctx context.Context, localPath, folder string) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UploadErr != nil {
		return nil, s.UploadErr
	}

	s.seq++
	key := path.Join(folder, fmt.Sprintf("obj-%d%s", s.seq, filepath.Ext(localPath)))
	s.objects[key] = localPath
	return &Asset{
		URL:       "http://assets.test/" + key,
		StorageID: key,
	}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, storageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.objects[storageID]; !ok {
		return ErrNotFound
	}
	delete(s.objects, storageID)
	return nil
}

// Count returns the number of stored objects.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// UploadedTo lists storage ids under the given folder.
func (s *MemoryStore) UploadedTo(folder string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for key := range s.objects {
		if path.Dir(key) == folder {
			ids = append(ids, key)
		}
	}
	return ids
}
