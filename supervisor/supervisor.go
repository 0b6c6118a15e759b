package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/id"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/middleware"
	"github.com/quarryhq/quarry/strategy"
)

// execution tracks one running job.
type execution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor starts jobs, tracks their executions, and persists their
// terminal states.
type Supervisor struct {
	store    job.Store
	registry *strategy.Registry
	cancels  *CancelSet
	mw       middleware.Middleware
	logger   *slog.Logger

	activeMu sync.Mutex
	active   map[string]*execution
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithMiddleware sets the middleware chain strategies run through.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Supervisor) { s.mw = middleware.Chain(mws...) }
}

// New creates a Supervisor.
func New(store job.Store, registry *strategy.Registry, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:    store,
		registry: registry,
		cancels:  NewCancelSet(),
		mw:       middleware.Chain(),
		logger:   slog.Default(),
		active:   make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveCount returns how many jobs are currently executing.
func (s *Supervisor) ActiveCount() int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return len(s.active)
}

// IsActive reports whether the job is currently executing.
func (s *Supervisor) IsActive(jobID id.JobID) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	_, ok := s.active[jobID.String()]
	return ok
}

// Start transitions the job to running and launches its strategy in a new
// goroutine. Starting a job that is already executing is a no-op.
func (s *Supervisor) Start(ctx context.Context, j *job.Job) error {
	key := j.ID.String()

	s.activeMu.Lock()
	if _, ok := s.active[key]; ok {
		s.activeMu.Unlock()
		s.logger.Warn("job already executing", slog.String("job_id", key))
		return nil
	}

	strat, err := s.registry.Resolve(j.Kind)
	if err != nil {
		s.activeMu.Unlock()
		msg := err.Error()
		if _, uerr := s.store.UpdateStatus(ctx, j.ID, job.StatusUpdate{Status: job.StatusFailed, Error: &msg}); uerr != nil {
			s.logger.Error("failed to mark unresolvable job failed",
				slog.String("job_id", key),
				slog.String("error", uerr.Error()),
			)
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	exec := &execution{cancel: cancel, done: make(chan struct{})}
	s.active[key] = exec
	s.activeMu.Unlock()

	running, err := s.store.UpdateStatus(ctx, j.ID, job.StatusUpdate{Status: job.StatusRunning})
	if err != nil {
		// Same cleanup as the run defer: a Cancel racing into this window
		// may have flagged the job already.
		s.untrack(key)
		s.cancels.Remove(key)
		cancel()
		close(exec.done)
		return err
	}

	s.logger.Info("job started",
		slog.String("job_id", key),
		slog.String("kind", running.Kind),
		slog.Int("priority", running.Priority),
	)

	go s.run(runCtx, running, strat, exec)
	return nil
}

// run executes the strategy and persists the terminal state.
func (s *Supervisor) run(ctx context.Context, j *job.Job, strat strategy.Strategy, exec *execution) {
	key := j.ID.String()
	defer func() {
		s.untrack(key)
		s.cancels.Remove(key)
		exec.cancel()
		close(exec.done)
	}()

	mon := &monitor{sup: s, jobID: j.ID, ctx: ctx}

	var outcome *strategy.Outcome
	terminal := func(ctx context.Context) error {
		var err error
		outcome, err = strat.Run(ctx, j, mon)
		return err
	}

	err := s.mw(ctx, j, terminal)

	// The outer ctx is finished; terminal writes use a fresh context so a
	// cancelled job still gets its status persisted.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer storeCancel()

	switch {
	case err == nil:
		s.finishCompleted(storeCtx, j, outcome)
	case errors.Is(err, quarry.ErrJobCancelled) || errors.Is(err, context.Canceled):
		s.finishCancelled(storeCtx, j)
	default:
		s.finishFailed(storeCtx, j, err)
	}
}

func (s *Supervisor) finishCompleted(ctx context.Context, j *job.Job, outcome *strategy.Outcome) {
	progress := 100.0
	update := job.StatusUpdate{Status: job.StatusCompleted, Progress: &progress}
	if outcome != nil && outcome.OutputRef != "" {
		update.OutputRef = &outcome.OutputRef
	}
	if _, err := s.store.UpdateStatus(ctx, j.ID, update); err != nil {
		s.logger.Error("failed to mark job completed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	if outcome != nil {
		r := job.NewResult(j.ID, outcome.Data, outcome.Stats, outcome.OutputRef)
		if err := s.store.CreateResult(ctx, r); err != nil {
			s.logger.Error("failed to persist job result",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("job completed", slog.String("job_id", j.ID.String()), slog.String("kind", j.Kind))
}

func (s *Supervisor) finishCancelled(ctx context.Context, j *job.Job) {
	if _, err := s.store.UpdateStatus(ctx, j.ID, job.StatusUpdate{Status: job.StatusCancelled}); err != nil {
		s.logger.Error("failed to mark job cancelled",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("job cancelled", slog.String("job_id", j.ID.String()), slog.String("kind", j.Kind))
}

func (s *Supervisor) finishFailed(ctx context.Context, j *job.Job, runErr error) {
	msg := runErr.Error()
	if _, err := s.store.UpdateStatus(ctx, j.ID, job.StatusUpdate{Status: job.StatusFailed, Error: &msg}); err != nil {
		s.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", j.Kind),
		slog.String("error", msg),
	)
}

// Cancel requests cooperative cancellation of a running job and waits for
// its execution goroutine to finish, bounded by ctx. Returns ErrJobNotActive
// when the job is not currently executing.
func (s *Supervisor) Cancel(ctx context.Context, jobID id.JobID) error {
	key := jobID.String()

	s.activeMu.Lock()
	exec, ok := s.active[key]
	s.activeMu.Unlock()
	if !ok {
		return quarry.ErrJobNotActive
	}

	s.cancels.Add(key)
	exec.cancel()

	select {
	case <-exec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) untrack(key string) {
	s.activeMu.Lock()
	delete(s.active, key)
	s.activeMu.Unlock()
}
