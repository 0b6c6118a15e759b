// Package engine wires the store, artifact storage, strategies, supervisor,
// and drainer into one orchestration facade. The HTTP API and the daemon
// talk to the Engine, never to the internals directly.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/backoff"
	"github.com/quarryhq/quarry/drainer"
	"github.com/quarryhq/quarry/id"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/middleware"
	"github.com/quarryhq/quarry/strategy"
	"github.com/quarryhq/quarry/supervisor"
)

// Engine is the orchestration facade over the job store, the artifact
// store, and the execution machinery.
type Engine struct {
	store     job.Store
	artifacts artifact.Store
	registry  *strategy.Registry
	sup       *supervisor.Supervisor
	drain     *drainer.Drainer
	logger    *slog.Logger

	concurrency  int
	pollInterval time.Duration
	backoff      backoff.Strategy
	mws          []middleware.Middleware
	buckets      []string
}

// Option configures the Engine.
type Option func(*Engine)

// WithConcurrency sets the maximum number of concurrently running jobs.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithPollInterval sets the backlog poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMiddleware sets the middleware chain job strategies run through.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) { e.mws = mws }
}

// WithBackoff sets the backoff strategy for backlog poll failures.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.backoff = b }
}

// WithBuckets sets the artifact buckets ensured at startup.
func WithBuckets(buckets ...string) Option {
	return func(e *Engine) { e.buckets = buckets }
}

// New creates an Engine. Call Start to begin draining the backlog.
func New(store job.Store, artifacts artifact.Store, registry *strategy.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		artifacts:    artifacts,
		registry:     registry,
		logger:       slog.Default(),
		concurrency:  5,
		pollInterval: 5 * time.Second,
		backoff:      backoff.DefaultStrategy(),
		buckets:      []string{"raw-data", "processed-data"},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.sup = supervisor.New(store, registry,
		supervisor.WithLogger(e.logger),
		supervisor.WithMiddleware(e.mws...),
	)
	e.drain = drainer.New(store, e.sup,
		drainer.WithConcurrency(e.concurrency),
		drainer.WithPollInterval(e.pollInterval),
		drainer.WithBackoff(e.backoff),
		drainer.WithLogger(e.logger),
	)
	return e
}

// Start migrates the store, ensures the artifact buckets, and launches the
// backlog drainer. Jobs interrupted by a previous crash are swept back to
// pending before draining begins.
func (e *Engine) Start(ctx context.Context) error {
	if e.store == nil {
		return quarry.ErrNoStore
	}
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("engine: migrate store: %w", err)
	}
	for _, bucket := range e.buckets {
		if err := e.artifacts.EnsureBucket(ctx, bucket); err != nil {
			return fmt.Errorf("engine: ensure bucket %s: %w", bucket, err)
		}
	}
	if err := e.drain.Start(ctx); err != nil {
		return fmt.Errorf("engine: start drainer: %w", err)
	}
	e.logger.Info("engine started", slog.Any("kinds", e.registry.Kinds()))
	return nil
}

// Stop halts the drainer and waits for running jobs to finish, bounded by
// ctx.
func (e *Engine) Stop(ctx context.Context) error {
	e.drain.Stop()

	for e.sup.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			e.logger.Warn("engine stopped with jobs still running",
				slog.Int("active", e.sup.ActiveCount()),
			)
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	e.logger.Info("engine stopped")
	return nil
}

// Kinds returns the job kinds this engine can execute.
func (e *Engine) Kinds() []string {
	return e.registry.Kinds()
}

// Submit validates the kind and persists a new pending job. The drainer
// picks it up on its next poll.
func (e *Engine) Submit(ctx context.Context, kind string, config json.RawMessage, priority int, tags ...string) (*job.Job, error) {
	if _, err := e.registry.Resolve(kind); err != nil {
		return nil, err
	}

	j := job.New(kind, config, priority, tags...)
	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	e.logger.Info("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", kind),
		slog.Int("priority", priority),
	)
	return j, nil
}

// Get returns the job by ID.
func (e *Engine) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// List returns jobs matching the filters plus the total match count.
func (e *Engine) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, int64, error) {
	return e.store.ListJobs(ctx, opts)
}

// RequestStart launches the job immediately, bypassing the backlog order.
// Only pending and failed jobs can be started.
func (e *Engine) RequestStart(ctx context.Context, jobID id.JobID) error {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.Status.Startable() {
		return fmt.Errorf("start from %s: %w", j.Status, quarry.ErrInvalidTransition)
	}
	return e.sup.Start(ctx, j)
}

// RequestCancel requests cooperative cancellation of a running job.
func (e *Engine) RequestCancel(ctx context.Context, jobID id.JobID) error {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return err
	}
	return e.sup.Cancel(ctx, jobID)
}

// Delete cancels the job if it is running, removes its artifacts, and
// deletes the job with its results.
func (e *Engine) Delete(ctx context.Context, jobID id.JobID) error {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if e.sup.IsActive(jobID) {
		if err := e.sup.Cancel(ctx, jobID); err != nil && !errors.Is(err, quarry.ErrJobNotActive) {
			return err
		}
	}

	e.deleteArtifact(ctx, j.OutputRef)
	results, err := e.store.ListResults(ctx, jobID)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.OutputRef != j.OutputRef {
			e.deleteArtifact(ctx, r.OutputRef)
		}
	}

	return e.store.DeleteJob(ctx, jobID)
}

// Results returns the job's results, oldest first.
func (e *Engine) Results(ctx context.Context, jobID id.JobID) ([]*job.Result, error) {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return e.store.ListResults(ctx, jobID)
}

// DownloadURL returns a presigned URL for the job's output artifact.
func (e *Engine) DownloadURL(ctx context.Context, jobID id.JobID, expiry time.Duration) (string, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if j.OutputRef == "" {
		return "", quarry.ErrResultNotFound
	}
	bucket, key := artifact.SplitRef(j.OutputRef)
	return e.artifacts.PresignedURL(ctx, bucket, key, expiry)
}

// ActiveCount returns how many jobs are currently executing.
func (e *Engine) ActiveCount() int {
	return e.sup.ActiveCount()
}

// Ping checks the job store connection.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// deleteArtifact best-effort removes a "bucket/key" reference.
func (e *Engine) deleteArtifact(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	bucket, key := artifact.SplitRef(ref)
	if bucket == "" {
		return
	}
	if err := e.artifacts.Delete(ctx, bucket, key); err != nil {
		e.logger.Warn("failed to delete artifact",
			slog.String("ref", ref),
			slog.String("error", err.Error()),
		)
	}
}
