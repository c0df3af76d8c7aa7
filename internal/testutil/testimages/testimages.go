// Package testimages provides an in-memory image store for tests.
package testimages

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/tempfiles"
	"github.com/google/uuid"
)

// Store keeps blobs in a map.
type Store struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{blobs: map[string][]byte{}}
}

func (s *Store) Upload(_ context.Context, r io.Reader, maxSize int64, contentType string) (*registryimage.Image, error) {
	spooled, err := tempfiles.Spool(os.TempDir(), "test-image-*", r, maxSize)
	if err != nil {
		return nil, err
	}
	defer spooled.Close()
	data, err := io.ReadAll(spooled.File)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()
	return &registryimage.Image{ID: id, Size: spooled.Size, SHA256: spooled.SHA256, ContentType: contentType}, nil
}

func (s *Store) Download(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	delete(s.blobs, id)
	return nil
}
