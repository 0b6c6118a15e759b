// Package supervisor owns the lifecycle of executing jobs. It moves a job
// from pending to running, runs the resolved strategy through the middleware
// chain in its own goroutine, and persists the terminal state when the
// strategy returns.
//
// Cancellation is cooperative. Cancel flips the job's cancel flag and
// cancels its context; the strategy observes both at its next checkpoint.
// A strategy that finishes without hitting a checkpoint completes normally
// even when cancellation was requested.
package supervisor
