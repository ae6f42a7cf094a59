package storage

import (
	"context"
	"io"
)

// ArchiveStore mirrors registered artifacts into durable object storage.
// The artifact catalog stays the source of truth; the archive is a copy for
// retention and off-site access.
type ArchiveStore interface {
	// EnsureBucket creates the archive bucket if it does not exist
	EnsureBucket(ctx context.Context) error

	// Upload stores an object under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object by key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object
	Delete(ctx context.Context, key string) error
}
