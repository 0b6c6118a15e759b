// Package artifact stores binary payloads produced and consumed by jobs:
// raw page archives, processed datasets, screenshots. Objects are addressed
// by bucket and key; the engine records the reference as "bucket/key" on the
// owning job.
package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound indicates the requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Object is a stored artifact payload with its metadata.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Store is the blob storage contract for job artifacts.
type Store interface {
	// EnsureBucket creates the bucket if it does not already exist.
	EnsureBucket(ctx context.Context, bucket string) error

	// Put stores the payload under bucket/key.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error

	// Get retrieves the payload stored under bucket/key. The caller must
	// close the returned body.
	Get(ctx context.Context, bucket, key string) (*Object, error)

	// Delete removes the payload under bucket/key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// PresignedURL returns a time-limited download URL for bucket/key.
	PresignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// Ref joins a bucket and key into the "bucket/key" form stored on jobs.
func Ref(bucket, key string) string {
	return bucket + "/" + key
}

// SplitRef splits a "bucket/key" reference back into its parts. Returns
// empty strings when the reference is malformed.
func SplitRef(ref string) (bucket, key string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ""
}
