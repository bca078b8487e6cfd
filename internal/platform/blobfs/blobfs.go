// Package blobfs is a local-disk implementation of the blob storage
// contract, used when no external object store is wired in. Blobs are
// addressed by a generated ID carrying the content-type extension so the
// serving layer needs no side lookup.
package blobfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pinbox/pinbox-api/internal/store"
)

// Store keeps blobs as flat files under a base directory.
type Store struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

var _ store.BlobStore = (*Store)(nil)

// New creates a blob store rooted at dir, creating it if needed. baseURL is
// the public prefix blob URLs are built from.
func New(dir, baseURL string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "blobfs"),
	}, nil
}

// GetURL returns a fetchable URL for the blob.
func (s *Store) GetURL(ctx context.Context, id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return s.baseURL + "/" + id, nil
}

// Open returns the blob's content for reading.
func (s *Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Put stores a new blob and returns its reference.
func (s *Store) Put(ctx context.Context, contentType string, r io.Reader) (string, error) {
	id := uuid.New().String() + extensionFor(contentType)

	f, err := os.Create(filepath.Join(s.dir, id))
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close blob file: %w", err)
	}

	s.logger.Debug("blob stored", "blob_id", id, "content_type", contentType)
	return id, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// validateID rejects references that could escape the base directory.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid blob id %q", id)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
