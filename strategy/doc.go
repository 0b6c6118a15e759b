// Package strategy defines the pluggable execution interface the supervisor
// runs jobs against, and the registry mapping job kinds to strategies.
//
// A [Strategy] performs the actual extraction or transformation for one job
// kind. Strategies are mutually substitutable: the supervisor and drainer
// never change when a kind is added.
//
// # Cooperative cancellation
//
// Strategies receive a [Monitor] and must call Monitor.Checkpoint at
// well-defined points between expensive stages (a network round-trip, a
// per-chunk transform). Cancellation is advisory, not preemptive: a strategy
// that never checkpoints runs to completion even after a cancel request.
//
// # Typed strategies
//
// [Func] adapts an ordinary typed function into a Strategy by unmarshalling
// the job's JSON config before the handler runs:
//
//	var Sleep = strategy.Func("sleep", func(ctx context.Context, j *job.Job, cfg struct {
//	    Seconds int `json:"seconds"`
//	}, mon strategy.Monitor) (*strategy.Outcome, error) {
//	    ...
//	})
package strategy
