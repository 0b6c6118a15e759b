// Package memory provides a fully in-memory implementation of
// artifact.Store. Intended for unit testing and development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quarryhq/quarry/artifact"
)

// Ensure Store implements artifact.Store at compile time.
var _ artifact.Store = (*Store)(nil)

type object struct {
	data        []byte
	contentType string
}

// Store is an in-memory artifact.Store.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]object
}

// New returns a new empty Store.
func New() *Store {
	return &Store{buckets: make(map[string]map[string]object)}
}

// EnsureBucket creates the bucket if it does not already exist.
func (m *Store) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]object)
	}
	return nil
}

// Put stores the payload under bucket/key. The bucket is created on demand.
func (m *Store) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("quarry/artifact: read payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]object)
	}
	m.buckets[bucket][key] = object{data: data, contentType: contentType}
	return nil
}

// Get retrieves the payload stored under bucket/key.
func (m *Store) Get(_ context.Context, bucket, key string) (*artifact.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("quarry/artifact: get %s/%s: %w", bucket, key, artifact.ErrNotFound)
	}
	return &artifact.Object{
		Key:         key,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
	}, nil
}

// Delete removes the payload under bucket/key.
func (m *Store) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[bucket], key)
	return nil
}

// PresignedURL returns a synthetic URL. The memory store cannot serve it;
// the value exists so callers can exercise the flow in tests.
func (m *Store) PresignedURL(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.buckets[bucket][key]; !ok {
		return "", fmt.Errorf("quarry/artifact: presign %s/%s: %w", bucket, key, artifact.ErrNotFound)
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, int64(expiry.Seconds())), nil
}
