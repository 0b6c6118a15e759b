package job

import (
	"context"
	"time"

	"github.com/quarryhq/quarry/id"
)

// ListOpts controls filtering and pagination for job list queries.
type ListOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// Kind filters by job kind. Empty means all kinds.
	Kind string
	// Tag filters jobs carrying the given tag. Empty means no tag filter.
	Tag string
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// StatusUpdate describes a partial status mutation. Nil pointer fields are
// left untouched so callers can update status, progress, error, and output
// reference independently.
type StatusUpdate struct {
	Status    Status
	Error     *string
	Progress  *float64
	OutputRef *string
}

// Store defines the persistence contract for jobs and results. Every
// operation is atomic per call; no transactional guarantee spans calls.
type Store interface {
	// CreateJob persists a new job. The status is forced to pending.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateStatus applies a partial status mutation and returns the updated
	// job. Transitioning to running stamps StartedAt (and zeroes progress
	// unless the update carries one); terminal statuses stamp CompletedAt.
	// A status change not allowed by ValidTransition fails with
	// ErrInvalidTransition.
	UpdateStatus(ctx context.Context, jobID id.JobID, u StatusUpdate) (*Job, error)

	// DeleteJob removes a job and cascades deletion of its results.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobs returns jobs matching the filters plus the total match count.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, int64, error)

	// NextPending returns the pending job with the highest priority, breaking
	// ties by earliest creation time. Returns (nil, nil) when the backlog is
	// empty.
	NextPending(ctx context.Context) (*Job, error)

	// ResetRunning moves every running job back to pending with the given
	// error annotation and returns how many were reset. Run once at startup:
	// a running job at boot is an artifact of an unclean shutdown.
	ResetRunning(ctx context.Context, note string) (int64, error)

	// CreateResult persists a result for a completed job.
	CreateResult(ctx context.Context, r *Result) error

	// GetResult retrieves a result by ID.
	GetResult(ctx context.Context, resultID id.ResultID) (*Result, error)

	// ListResults returns all results owned by the given job, oldest first.
	ListResults(ctx context.Context, jobID id.JobID) ([]*Result, error)

	// Migrate prepares backend schema or indexes.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ApplyUpdate mutates j in place according to u, stamping timestamps the way
// every store backend must. Shared by store implementations so the status
// glue lives in one place.
func ApplyUpdate(j *Job, u StatusUpdate, now time.Time) {
	j.Status = u.Status
	j.UpdatedAt = now

	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.OutputRef != nil {
		j.OutputRef = *u.OutputRef
	}

	switch {
	case u.Status == StatusRunning:
		if j.StartedAt == nil {
			t := now
			j.StartedAt = &t
		}
		if u.Progress == nil {
			j.Progress = 0
		}
	case u.Status.Terminal() || u.Status == StatusFailed:
		t := now
		j.CompletedAt = &t
	case u.Status == StatusPending:
		// Reset path (recovery sweep or explicit restart): a re-drained job
		// starts its lifecycle over.
		j.StartedAt = nil
		j.CompletedAt = nil
		j.Progress = 0
	}
}
