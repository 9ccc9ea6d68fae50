package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains the blob-store seam: one object per document,
// keyed by a generated name, streamed in and out. The metadata layer never
// touches backend specifics, so the local-disk backend can be swapped for
// object storage without changing any repository logic.

// ErrNotExist is returned when no object is stored under the requested key.
// A metadata row pointing at a key that yields ErrNotExist is a dangling
// record; callers map this to their own not-found error.
var ErrNotExist = errors.New("object does not exist")

// ErrPresignNotSupported is returned by backends that cannot mint
// time-limited download URLs (the local filesystem backend).
var ErrPresignNotSupported = errors.New("presigned URLs not supported by this backend")

// PutObjectOptions define optional parameters for storing objects.
// Size should be the exact number of bytes if known; if unknown, set to -1
// and the implementation will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about a stored object.
// Size is the number of bytes the backend actually holds.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the blob-store interface. Methods use context and streaming
// readers; implementations must be safe for concurrent use.
type Storage interface {
	// Put stores an object under the given key from the provided reader.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// Returns ErrNotExist when nothing is stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Returns ErrNotExist when nothing is
	// stored under key; callers treating removal as best-effort ignore it.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the
	// object without credentials, or ErrPresignNotSupported.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
