// Package memory provides a fully in-memory implementation of job.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/id"
	"github.com/quarryhq/quarry/job"
)

// Ensure Store implements job.Store at compile time.
var _ job.Store = (*Store)(nil)

// Store is an in-memory job.Store.
type Store struct {
	mu      sync.RWMutex
	closed  bool
	jobs    map[string]*job.Job
	results map[string]*job.Result
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*job.Job),
		results: make(map[string]*job.Result),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails once the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return quarry.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further operations fail with
// ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CreateJob persists a new job. The status is forced to pending.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return quarry.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return quarry.ErrJobAlreadyExists
	}
	cp := *j
	cp.Status = job.StatusPending
	m.jobs[key] = &cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, quarry.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, quarry.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateStatus applies a partial status mutation and returns the updated job.
func (m *Store) UpdateStatus(_ context.Context, jobID id.JobID, u job.StatusUpdate) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, quarry.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, quarry.ErrJobNotFound
	}
	if !job.ValidTransition(j.Status, u.Status) {
		return nil, fmt.Errorf("%s to %s: %w", j.Status, u.Status, quarry.ErrInvalidTransition)
	}
	job.ApplyUpdate(j, u, time.Now().UTC())
	cp := *j
	return &cp, nil
}

// DeleteJob removes a job and cascades deletion of its results.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return quarry.ErrStoreClosed
	}

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return quarry.ErrJobNotFound
	}
	delete(m.jobs, key)

	for rk, r := range m.results {
		if r.JobID.String() == key {
			delete(m.results, rk)
		}
	}
	return nil
}

// ListJobs returns jobs matching the filters plus the total match count.
// Jobs are ordered newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, 0, quarry.ErrStoreClosed
	}

	matched := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Kind != "" && j.Kind != opts.Kind {
			continue
		}
		if opts.Tag != "" && !slices.Contains(j.Tags, opts.Tag) {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	total := int64(len(matched))

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return matched, total, nil
}

// NextPending returns the pending job with the highest priority, breaking
// ties by earliest creation time. Returns (nil, nil) when the backlog is
// empty.
func (m *Store) NextPending(_ context.Context) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, quarry.ErrStoreClosed
	}

	var next *job.Job
	for _, j := range m.jobs {
		if j.Status != job.StatusPending {
			continue
		}
		if next == nil ||
			j.Priority > next.Priority ||
			(j.Priority == next.Priority && j.CreatedAt.Before(next.CreatedAt)) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

// ResetRunning moves every running job back to pending with the given error
// annotation and returns how many were reset.
func (m *Store) ResetRunning(_ context.Context, note string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, quarry.ErrStoreClosed
	}

	now := time.Now().UTC()
	var count int64
	for _, j := range m.jobs {
		if j.Status != job.StatusRunning {
			continue
		}
		job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusPending, Error: &note}, now)
		count++
	}
	return count, nil
}

// CreateResult persists a result for a completed job.
func (m *Store) CreateResult(_ context.Context, r *job.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return quarry.ErrStoreClosed
	}

	cp := *r
	m.results[r.ID.String()] = &cp
	return nil
}

// GetResult retrieves a result by ID.
func (m *Store) GetResult(_ context.Context, resultID id.ResultID) (*job.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, quarry.ErrStoreClosed
	}

	r, ok := m.results[resultID.String()]
	if !ok {
		return nil, quarry.ErrResultNotFound
	}
	cp := *r
	return &cp, nil
}

// ListResults returns all results owned by the given job, oldest first.
func (m *Store) ListResults(_ context.Context, jobID id.JobID) ([]*job.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, quarry.ErrStoreClosed
	}

	var results []*job.Result
	for _, r := range m.results {
		if r.JobID.String() == jobID.String() {
			cp := *r
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, k int) bool {
		return results[i].CreatedAt.Before(results[k].CreatedAt)
	})
	return results, nil
}
