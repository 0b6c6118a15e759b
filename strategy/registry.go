package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/job"
)

// Registry is an immutable lookup table from job kind to strategy, resolved
// once at construction. Adding a kind never requires modifying the
// supervisor or the drainer.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds a registry from the given strategies. It panics on a
// duplicate kind: two strategies claiming the same kind is a wiring error
// that must fail at process start, not at dispatch time.
func NewRegistry(strategies ...Strategy) *Registry {
	m := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		if _, dup := m[s.Kind()]; dup {
			panic(fmt.Sprintf("strategy: duplicate registration for kind %q", s.Kind()))
		}
		m[s.Kind()] = s
	}
	return &Registry{strategies: m}
}

// Resolve returns the strategy for the given kind, or ErrUnknownKind when
// no strategy is registered for it.
func (r *Registry) Resolve(kind string) (Strategy, error) {
	s, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("kind %q: %w", kind, quarry.ErrUnknownKind)
	}
	return s, nil
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// funcStrategy adapts a typed handler into a Strategy.
type funcStrategy[T any] struct {
	kind string
	fn   func(ctx context.Context, j *job.Job, cfg T, mon Monitor) (*Outcome, error)
}

// Func wraps a typed handler as a Strategy. The job's JSON config is
// unmarshalled into T before the handler runs.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Func[T any](kind string, fn func(ctx context.Context, j *job.Job, cfg T, mon Monitor) (*Outcome, error)) Strategy {
	return &funcStrategy[T]{kind: kind, fn: fn}
}

func (f *funcStrategy[T]) Kind() string { return f.kind }

func (f *funcStrategy[T]) Run(ctx context.Context, j *job.Job, mon Monitor) (*Outcome, error) {
	var cfg T
	if len(j.Config) > 0 {
		if err := json.Unmarshal(j.Config, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config for kind %q: %w", f.kind, err)
		}
	}
	return f.fn(ctx, j, cfg, mon)
}
