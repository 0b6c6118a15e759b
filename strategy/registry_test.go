package strategy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

func TestRegistry_ResolveAndKinds(t *testing.T) {
	a := strategy.Func("alpha", func(_ context.Context, _ *job.Job, _ struct{}, _ strategy.Monitor) (*strategy.Outcome, error) {
		return &strategy.Outcome{}, nil
	})
	b := strategy.Func("beta", func(_ context.Context, _ *job.Job, _ struct{}, _ strategy.Monitor) (*strategy.Outcome, error) {
		return &strategy.Outcome{}, nil
	})

	reg := strategy.NewRegistry(a, b)

	if _, err := reg.Resolve("alpha"); err != nil {
		t.Errorf("expected alpha to resolve, got %v", err)
	}
	if _, err := reg.Resolve("gamma"); !errors.Is(err, quarry.ErrUnknownKind) {
		t.Errorf("unknown kind = %v, want ErrUnknownKind", err)
	}

	kinds := reg.Kinds()
	if len(kinds) != 2 || kinds[0] != "alpha" || kinds[1] != "beta" {
		t.Errorf("Kinds() = %v, want [alpha beta]", kinds)
	}
}

func TestRegistry_DuplicateKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate kind")
		}
	}()

	dup := strategy.Func("same", func(_ context.Context, _ *job.Job, _ struct{}, _ strategy.Monitor) (*strategy.Outcome, error) {
		return nil, nil
	})
	strategy.NewRegistry(dup, dup)
}

func TestFunc_UnmarshalsConfig(t *testing.T) {
	s := strategy.Func("echo", func(_ context.Context, _ *job.Job, cfg struct {
		Name string `json:"name"`
	}, _ strategy.Monitor) (*strategy.Outcome, error) {
		return &strategy.Outcome{Data: map[string]any{"name": cfg.Name}}, nil
	})

	j := job.New("echo", []byte(`{"name":"Alice"}`), 0)
	out, err := s.Run(context.Background(), j, strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Data["name"] != "Alice" {
		t.Errorf("data.name = %v, want Alice", out.Data["name"])
	}
}

func TestFunc_InvalidConfig(t *testing.T) {
	s := strategy.Func("echo", func(_ context.Context, _ *job.Job, _ struct{ N int }, _ strategy.Monitor) (*strategy.Outcome, error) {
		return &strategy.Outcome{}, nil
	})

	j := job.New("echo", []byte(`{invalid`), 0)
	if _, err := s.Run(context.Background(), j, strategy.NopMonitor{}); err == nil {
		t.Error("expected error for invalid JSON config")
	}
}

func TestFunc_EmptyConfig(t *testing.T) {
	s := strategy.Func("echo", func(_ context.Context, _ *job.Job, cfg struct{ N int }, _ strategy.Monitor) (*strategy.Outcome, error) {
		if cfg.N != 0 {
			t.Errorf("cfg.N = %d, want zero value", cfg.N)
		}
		return &strategy.Outcome{}, nil
	})

	j := job.New("echo", nil, 0)
	if _, err := s.Run(context.Background(), j, strategy.NopMonitor{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
