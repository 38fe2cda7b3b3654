package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectExists is returned by Upload when the key is already taken.
	ErrObjectExists = errors.New("storage: object already exists")
	// ErrObjectNotFound is returned by Download for a missing key.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// ObjectStorage holds downloaded notice documents. Keys embed the content
// fingerprint, so an object is written once and never replaced.
type ObjectStorage interface {
	// Upload stores an object under key. Returns ErrObjectExists when an
	// object is already present, leaving it untouched.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}
