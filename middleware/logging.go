package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/job"
)

// Logging returns middleware that logs strategy start and completion.
// Cancellation is logged at info level; it is an expected outcome, not a
// failure.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("job started",
			slog.String("job_id", j.ID.String()),
			slog.String("kind", j.Kind),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case errors.Is(err, quarry.ErrJobCancelled):
			logger.Info("job cancelled",
				slog.String("job_id", j.ID.String()),
				slog.String("kind", j.Kind),
				slog.Duration("elapsed", elapsed),
			)
		case err != nil:
			logger.Error("job failed",
				slog.String("job_id", j.ID.String()),
				slog.String("kind", j.Kind),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		default:
			logger.Info("job completed",
				slog.String("job_id", j.ID.String()),
				slog.String("kind", j.Kind),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
