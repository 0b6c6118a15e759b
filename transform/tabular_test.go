package transform_test

import (
	"context"
	"strings"
	"testing"

	"github.com/quarryhq/quarry/artifact/memory"
	"github.com/quarryhq/quarry/strategy"
	"github.com/quarryhq/quarry/transform"
)

const sampleCSV = `name,price,category
widget,9.99,tools
widget,9.99,tools
,,
gadget,,toys
`

func TestTabular_CleansCSV(t *testing.T) {
	artifacts := memory.New()
	strat := transform.NewTabular(artifacts, "processed-data")

	j := makeJob(t, transform.KindTabular, map[string]any{
		"csv":             sampleCSV,
		"drop_empty_rows": true,
		"drop_duplicates": true,
	})

	out, err := strat.Run(context.Background(), j, strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.Stats["input_rows"] != 4 {
		t.Errorf("input_rows = %v, want 4", out.Stats["input_rows"])
	}
	if out.Stats["output_rows"] != 2 {
		t.Errorf("output_rows = %v, want 2", out.Stats["output_rows"])
	}
	if out.Stats["dropped_empty"] != 1 {
		t.Errorf("dropped_empty = %v, want 1", out.Stats["dropped_empty"])
	}
	if out.Stats["dropped_duplicates"] != 1 {
		t.Errorf("dropped_duplicates = %v, want 1", out.Stats["dropped_duplicates"])
	}

	nulls := out.Stats["null_counts"].(map[string]any)
	if nulls["price"] != 1 {
		t.Errorf("null price count = %v, want 1", nulls["price"])
	}

	got := readArtifact(t, artifacts, out.OutputRef)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Errorf("output lines = %d, want header plus 2 rows", len(lines))
	}
}

func TestTabular_ColumnProjection(t *testing.T) {
	artifacts := memory.New()
	strat := transform.NewTabular(artifacts, "")

	j := makeJob(t, transform.KindTabular, map[string]any{
		"csv":     sampleCSV,
		"columns": []string{"category", "name"},
	})

	out, err := strat.Run(context.Background(), j, strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got := readArtifact(t, artifacts, out.OutputRef)
	if !strings.HasPrefix(got, "category,name\n") {
		t.Errorf("header = %q, want projected column order", strings.SplitN(got, "\n", 2)[0])
	}
	if !strings.Contains(got, "tools,widget") {
		t.Error("rows must be projected in the requested order")
	}
}

func TestTabular_UnknownColumn(t *testing.T) {
	strat := transform.NewTabular(memory.New(), "")
	j := makeJob(t, transform.KindTabular, map[string]any{
		"csv":     sampleCSV,
		"columns": []string{"nope"},
	})
	if _, err := strat.Run(context.Background(), j, strategy.NopMonitor{}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestTabular_EmptyInput(t *testing.T) {
	strat := transform.NewTabular(memory.New(), "")
	j := makeJob(t, transform.KindTabular, map[string]any{"csv": ""})
	if _, err := strat.Run(context.Background(), j, strategy.NopMonitor{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}
