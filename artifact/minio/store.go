// Package minio implements artifact.Store on a MinIO or S3-compatible
// object store.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/quarryhq/quarry/artifact"
)

// Ensure Store implements artifact.Store at compile time.
var _ artifact.Store = (*Store)(nil)

// Store is a MinIO-backed artifact store. The caller owns the client.
type Store struct {
	client *minio.Client
}

// New wraps an existing MinIO client.
func New(client *minio.Client) *Store {
	return &Store{client: client}
}

// EnsureBucket creates the bucket if it does not already exist.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("quarry/minio: check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("quarry/minio: make bucket %s: %w", bucket, err)
	}
	return nil
}

// Put stores the payload under bucket/key.
func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("quarry/minio: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get retrieves the payload stored under bucket/key.
func (s *Store) Get(ctx context.Context, bucket, key string) (*artifact.Object, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("quarry/minio: get %s/%s: %w", bucket, key, err)
	}

	// GetObject is lazy; Stat forces the first request so a missing key
	// surfaces here instead of on the first Read.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("quarry/minio: get %s/%s: %w", bucket, key, artifact.ErrNotFound)
		}
		return nil, fmt.Errorf("quarry/minio: stat %s/%s: %w", bucket, key, err)
	}

	return &artifact.Object{
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
		Body:        obj,
	}, nil
}

// Delete removes the payload under bucket/key.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("quarry/minio: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for bucket/key.
func (s *Store) PresignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("quarry/minio: presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}
