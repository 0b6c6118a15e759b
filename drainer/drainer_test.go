package drainer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quarryhq/quarry/backoff"
	"github.com/quarryhq/quarry/drainer"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/store/memory"
	"github.com/quarryhq/quarry/strategy"
	"github.com/quarryhq/quarry/supervisor"
)

// blockingStrategy runs jobs that block until released, recording the order
// in which they started and the high-water mark of concurrent executions.
type blockingStrategy struct {
	kind    string
	release chan struct{}

	mu      sync.Mutex
	order   []string
	active  int
	maxSeen int
}

func newBlockingStrategy(kind string) *blockingStrategy {
	return &blockingStrategy{kind: kind, release: make(chan struct{})}
}

func (s *blockingStrategy) Kind() string { return s.kind }

func (s *blockingStrategy) Run(ctx context.Context, j *job.Job, _ strategy.Monitor) (*strategy.Outcome, error) {
	s.mu.Lock()
	s.order = append(s.order, j.ID.String())
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	<-s.release

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return &strategy.Outcome{}, nil
}

func (s *blockingStrategy) startedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *blockingStrategy) startedOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestDrain_RespectsConcurrencyCeiling(t *testing.T) {
	store := memory.New()
	strat := newBlockingStrategy("block")
	sup := supervisor.New(store, strategy.NewRegistry(strat))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.CreateJob(ctx, job.New("block", nil, 0)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	d := drainer.New(store, sup,
		drainer.WithConcurrency(2),
		drainer.WithPollInterval(10*time.Millisecond),
	)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	waitFor(t, 5*time.Second, func() bool { return strat.startedCount() == 2 })

	// Give the loop a few more polls; the ceiling must hold.
	time.Sleep(100 * time.Millisecond)
	if got := strat.startedCount(); got != 2 {
		t.Fatalf("started = %d with ceiling 2", got)
	}

	close(strat.release)
	waitFor(t, 5*time.Second, func() bool { return strat.startedCount() == 5 })

	strat.mu.Lock()
	maxSeen := strat.maxSeen
	strat.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("max concurrent = %d, want <= 2", maxSeen)
	}
}

func TestDrain_PriorityOrder(t *testing.T) {
	store := memory.New()
	strat := newBlockingStrategy("block")
	sup := supervisor.New(store, strategy.NewRegistry(strat))

	ctx := context.Background()
	low := job.New("block", nil, 5)
	low.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
	high := job.New("block", nil, 10)
	high.CreatedAt = time.Now().UTC().Add(-time.Minute)
	for _, j := range []*job.Job{low, high} {
		if err := store.CreateJob(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	d := drainer.New(store, sup,
		drainer.WithConcurrency(1),
		drainer.WithPollInterval(10*time.Millisecond),
	)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	waitFor(t, 5*time.Second, func() bool { return strat.startedCount() == 1 })
	close(strat.release)
	waitFor(t, 5*time.Second, func() bool { return strat.startedCount() == 2 })

	order := strat.startedOrder()
	if order[0] != high.ID.String() || order[1] != low.ID.String() {
		t.Errorf("drain order wrong: priority 10 must run before priority 5")
	}
}

func TestStart_SweepsInterruptedJobs(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	interrupted := job.New("block", nil, 0)
	if err := store.CreateJob(ctx, interrupted); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, interrupted.ID, job.StatusUpdate{Status: job.StatusRunning}); err != nil {
		t.Fatalf("update: %v", err)
	}

	strat := newBlockingStrategy("block")
	close(strat.release)
	sup := supervisor.New(store, strategy.NewRegistry(strat))

	d := drainer.New(store, sup, drainer.WithPollInterval(10*time.Millisecond))
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	// The swept job must be re-drained and executed.
	waitFor(t, 5*time.Second, func() bool { return strat.startedCount() == 1 })
	waitFor(t, 5*time.Second, func() bool {
		j, err := store.GetJob(ctx, interrupted.ID)
		return err == nil && j.Status == job.StatusCompleted
	})
}

// failingStarter rejects every start attempt, as a supervisor would when the
// store cannot persist the running transition.
type failingStarter struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStarter) Start(context.Context, *job.Job) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("store unavailable")
}

func (f *failingStarter) ActiveCount() int { return 0 }

func (f *failingStarter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDrain_BacksOffOnStartFailure(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if err := store.CreateJob(ctx, job.New("block", nil, 0)); err != nil {
		t.Fatalf("create: %v", err)
	}

	starter := &failingStarter{}
	d := drainer.New(store, starter,
		drainer.WithPollInterval(10*time.Millisecond),
		drainer.WithBackoff(backoff.NewConstant(time.Hour)),
	)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	waitFor(t, 5*time.Second, func() bool { return starter.callCount() == 1 })

	// The pending job is still next in line; without backoff the loop would
	// retry it every 100ms.
	time.Sleep(300 * time.Millisecond)
	if got := starter.callCount(); got != 1 {
		t.Errorf("start attempts = %d, want 1 while backing off", got)
	}
}

func TestStop_Idempotent(t *testing.T) {
	store := memory.New()
	sup := supervisor.New(store, strategy.NewRegistry())

	d := drainer.New(store, sup, drainer.WithPollInterval(10*time.Millisecond))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.Stop()
	d.Stop()
}
