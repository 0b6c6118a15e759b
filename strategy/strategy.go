package strategy

import (
	"context"

	"github.com/quarryhq/quarry/job"
)

// Monitor is the supervisor-provided control surface a strategy reports
// through while it runs.
type Monitor interface {
	// Checkpoint returns quarry.ErrJobCancelled when the job has been marked
	// for cancellation, nil otherwise. Strategies call it between expensive
	// stages and propagate the error unchanged.
	Checkpoint() error

	// Progress persists a 0-100 completion estimate. Failures to persist
	// progress are logged by the supervisor, never surfaced to the strategy.
	Progress(ctx context.Context, pct float64)
}

// Outcome is what a strategy produces on success. The supervisor turns it
// into the job's Result record and output reference.
type Outcome struct {
	// Data holds extracted or derived values.
	Data map[string]any

	// Stats holds execution statistics (timings, counts).
	Stats map[string]any

	// OutputRef points at the artifact written by the strategy, if any.
	OutputRef string
}

// Strategy executes jobs of a single kind.
type Strategy interface {
	// Kind returns the job kind this strategy handles.
	Kind() string

	// Run executes the job. Returning quarry.ErrJobCancelled (typically
	// propagated from a checkpoint) marks the job cancelled; any other error
	// marks it failed with the captured message.
	Run(ctx context.Context, j *job.Job, mon Monitor) (*Outcome, error)
}

// NopMonitor is a Monitor that never cancels and discards progress.
// Useful for tests and for running strategies outside the supervisor.
type NopMonitor struct{}

// Checkpoint always returns nil.
func (NopMonitor) Checkpoint() error { return nil }

// Progress discards the report.
func (NopMonitor) Progress(context.Context, float64) {}
