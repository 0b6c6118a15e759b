package job

import (
	"encoding/json"
	"time"

	"github.com/quarryhq/quarry/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be picked up by the drainer.
	StatusPending Status = "pending"
	// StatusRunning means the supervisor is currently executing the job.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the strategy returned an error. A failed job may be
	// restarted explicitly, never automatically.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled mid-flight.
	StatusCancelled Status = "cancelled"
)

// Job represents a persisted unit of asynchronous work.
type Job struct {
	ID id.JobID `json:"id"`

	// Kind selects the strategy that executes this job. Immutable.
	Kind string `json:"kind"`

	// Config is the opaque strategy-specific payload. The orchestration
	// engine never interprets it.
	Config json.RawMessage `json:"config,omitempty"`

	Status Status `json:"status"`

	// Priority determines drain ordering. Higher values drain first. Immutable.
	Priority int `json:"priority"`

	// Tags are free-form labels used for list filtering only.
	Tags []string `json:"tags,omitempty"`

	// Progress is a 0-100 completion estimate reported by the strategy.
	Progress float64 `json:"progress"`

	// Error holds the captured failure message for failed jobs, or the
	// restart annotation left by the recovery sweep.
	Error string `json:"error,omitempty"`

	// OutputRef points at the stored artifact, set on success.
	OutputRef string `json:"output_ref,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending job with a fresh ID and creation timestamps.
func New(kind string, config json.RawMessage, priority int, tags ...string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id.NewJobID(),
		Kind:      kind,
		Config:    config,
		Status:    StatusPending,
		Priority:  priority,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Result is produced by a strategy on success. Created once per successful
// run, never mutated, deleted when its owning job is deleted.
type Result struct {
	ID    id.ResultID `json:"id"`
	JobID id.JobID    `json:"job_id"`

	// Data holds strategy-specific extracted or derived values.
	Data map[string]any `json:"data,omitempty"`

	// Stats holds strategy-specific execution statistics.
	Stats map[string]any `json:"stats,omitempty"`

	// OutputRef points at the stored artifact for this result.
	OutputRef string `json:"output_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewResult creates a result owned by the given job.
func NewResult(jobID id.JobID, data, stats map[string]any, outputRef string) *Result {
	return &Result{
		ID:        id.NewResultID(),
		JobID:     jobID,
		Data:      data,
		Stats:     stats,
		OutputRef: outputRef,
		CreatedAt: time.Now().UTC(),
	}
}
