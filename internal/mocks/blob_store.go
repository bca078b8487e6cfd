package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pinbox/pinbox-api/internal/store"
)

// MemBlobStore is an in-memory store.BlobStore backed by a map.
type MemBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	next  int

	PutErr    error
	OpenErr   error
	DeleteErr error
}

// NewMemBlobStore returns an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

// SeedBlob stores content under a fixed ID for tests.
func (s *MemBlobStore) SeedBlob(id string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), content...)
}

// GetURL returns a synthetic URL for the blob.
func (s *MemBlobStore) GetURL(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return "", store.ErrNotFound
	}
	return "mem://" + id, nil
}

// Open returns the blob's content for reading.
func (s *MemBlobStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Put stores a new blob under a generated ID.
func (s *MemBlobStore) Put(ctx context.Context, contentType string, r io.Reader) (string, error) {
	if s.PutErr != nil {
		return "", s.PutErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("blob-%d", s.next)
	s.blobs[id] = b
	return id, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *MemBlobStore) Delete(ctx context.Context, id string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

// Has reports whether a blob exists, for assertions.
func (s *MemBlobStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[id]
	return ok
}

// Len reports how many blobs are stored.
func (s *MemBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
