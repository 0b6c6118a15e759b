package middleware

import (
	"context"
	"time"

	"github.com/quarryhq/quarry/job"
)

// Timeout returns middleware that enforces a fixed execution deadline.
// The supervisor installs no deadline of its own; deployments that want one
// add this middleware explicitly. A zero duration disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
