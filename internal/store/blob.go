package store

import (
	"context"
	"io"
)

// BlobStore is the contract with the external file-storage collaborator.
// Raw storage I/O is not implemented in this repository; the pipeline only
// reads source blobs, writes derived ones (thumbnails, screenshots) and
// deletes both during retention sweeps.
type BlobStore interface {
	// GetURL returns a fetchable URL for the blob, suitable for handing to
	// model calls that accept file URLs.
	GetURL(ctx context.Context, id string) (string, error)

	// Open returns the blob's content for reading.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// Put stores a new blob and returns its reference.
	Put(ctx context.Context, contentType string, r io.Reader) (string, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, id string) error
}
