// Package drainer polls the backlog and feeds pending jobs to the
// supervisor while respecting the concurrency ceiling. A single goroutine
// drains the queue, so backlog ordering is decided entirely by the store's
// NextPending sort.
package drainer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quarryhq/quarry/backoff"
	"github.com/quarryhq/quarry/job"
)

// The restart sweep annotation written to jobs interrupted by a crash.
const resetNote = "Job was reset due to service restart"

// yieldDelay is the pause after dispatching a job, giving the supervisor
// time to register the execution before the next poll.
const yieldDelay = 100 * time.Millisecond

// Starter is the subset of the supervisor the drainer depends on.
type Starter interface {
	Start(ctx context.Context, j *job.Job) error
	ActiveCount() int
}

// Drainer runs the backlog drain loop.
type Drainer struct {
	store        job.Store
	sup          Starter
	concurrency  int
	pollInterval time.Duration
	backoff      backoff.Strategy
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Drainer.
type Option func(*Drainer)

// WithConcurrency sets the maximum number of concurrently running jobs.
func WithConcurrency(n int) Option {
	return func(d *Drainer) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithPollInterval sets the idle poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Drainer) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithBackoff sets the backoff strategy used after store errors.
func WithBackoff(b backoff.Strategy) Option {
	return func(d *Drainer) { d.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Drainer) { d.logger = logger }
}

// New creates a Drainer.
func New(store job.Store, sup Starter, opts ...Option) *Drainer {
	d := &Drainer{
		store:        store,
		sup:          sup,
		concurrency:  5,
		pollInterval: 5 * time.Second,
		backoff:      backoff.DefaultStrategy(),
		logger:       slog.Default(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start sweeps jobs interrupted by a previous crash back to pending, then
// launches the drain loop. It returns immediately.
func (d *Drainer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	count, err := d.store.ResetRunning(ctx, resetNote)
	if err != nil {
		return err
	}
	if count > 0 {
		d.logger.Info("recovered interrupted jobs", slog.Int64("count", count))
	}

	d.running = true
	d.logger.Info("drainer starting",
		slog.Int("concurrency", d.concurrency),
		slog.Duration("poll_interval", d.pollInterval),
	)

	d.wg.Add(1)
	go d.loop()
	return nil
}

// Stop signals the drain loop to stop and waits for it to exit. Running
// jobs are left to finish under the supervisor.
func (d *Drainer) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("drainer stopped")
}

func (d *Drainer) loop() {
	defer d.wg.Done()

	failures := 0
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		if d.sup.ActiveCount() >= d.concurrency {
			d.sleep(d.pollInterval)
			continue
		}

		j, err := d.store.NextPending(context.Background())
		if err != nil {
			failures++
			d.logger.Error("backlog poll failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
			)
			d.sleep(d.backoff.Delay(failures))
			continue
		}

		if j == nil {
			failures = 0
			d.sleep(d.pollInterval)
			continue
		}

		// A start failure backs off like a poll failure: NextPending keeps
		// returning the same job while the store is down, so looping at the
		// yield pace would hammer it.
		if err := d.sup.Start(context.Background(), j); err != nil {
			failures++
			d.logger.Error("failed to start job",
				slog.String("job_id", j.ID.String()),
				slog.String("kind", j.Kind),
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
			)
			d.sleep(d.backoff.Delay(failures))
			continue
		}
		failures = 0
		d.sleep(yieldDelay)
	}
}

// sleep waits for the duration or until the drainer is stopped.
func (d *Drainer) sleep(duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-d.stopCh:
	case <-timer.C:
	}
}
