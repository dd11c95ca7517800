// Package storage persists converted covers. It defines the Storage interface
// (port) and implementations for local disk and S3.
package storage

import (
	"context"
	"errors"
	"io"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Storage defines the interface for storing conversion results.
// Keys are slash-separated relative paths such as "<job-id>/<file>.png".
type Storage interface {
	// Put stores data under key and returns its location (a filesystem
	// path for local storage).
	Put(ctx context.Context, key string, data io.Reader) (location string, err error)

	// Open returns a reader for a stored key.
	// The caller is responsible for closing the returned ReadCloser.
	// Returns ErrNotFound if nothing is stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the given keys. Missing keys are ignored and deletion
	// continues past individual failures.
	Delete(ctx context.Context, keys []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
