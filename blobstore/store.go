// Package blobstore abstracts cold storage for sealed rowset segments.
//
// Once a rowset is built, its segment files are immutable; they can be
// offloaded to an object store for backup or tiering without touching
// the write path. Backends:
//
//   - LocalStore: filesystem directory (default, also used in tests)
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with multipart upload
//   - minio.Store: MinIO / S3-compatible endpoints
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is a flat namespace of immutable blobs.
type Store interface {
	// Put writes a blob atomically under name, overwriting any
	// previous blob with that name.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, name string) error

	// List returns blob names with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
