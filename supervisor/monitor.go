package supervisor

import (
	"context"
	"log/slog"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/id"
	"github.com/quarryhq/quarry/job"
)

// monitor is the strategy.Monitor handed to executing strategies.
type monitor struct {
	sup   *Supervisor
	jobID id.JobID
	ctx   context.Context
}

// Checkpoint returns ErrJobCancelled once cancellation has been requested,
// either through the cancel flag or the execution context.
func (m *monitor) Checkpoint() error {
	if m.sup.cancels.Has(m.jobID.String()) {
		return quarry.ErrJobCancelled
	}
	select {
	case <-m.ctx.Done():
		return quarry.ErrJobCancelled
	default:
		return nil
	}
}

// Progress persists the job's progress percentage. Persistence failures are
// logged and swallowed so a flaky store write cannot fail the job.
func (m *monitor) Progress(ctx context.Context, pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	_, err := m.sup.store.UpdateStatus(ctx, m.jobID, job.StatusUpdate{
		Status:   job.StatusRunning,
		Progress: &pct,
	})
	if err != nil {
		m.sup.logger.Warn("failed to persist job progress",
			slog.String("job_id", m.jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}
