package transform

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"slices"
	"strings"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

// KindTabular is the job kind handled by the Tabular strategy.
const KindTabular = "tabular-preprocess"

// tabularJobConfig is the per-job configuration for CSV cleaning.
type tabularJobConfig struct {
	// CSV is the inline input. When empty, SourceRef is fetched instead.
	CSV       string `json:"csv,omitempty"`
	SourceRef string `json:"source_ref,omitempty"`

	// Columns keeps only the named columns, in the given order. Empty
	// keeps everything.
	Columns []string `json:"columns,omitempty"`

	DropEmptyRows  bool `json:"drop_empty_rows,omitempty"`
	DropDuplicates bool `json:"drop_duplicates,omitempty"`
}

// Tabular cleans CSV data: column projection, empty-row and duplicate
// removal, plus per-column null counting.
type Tabular struct {
	artifacts       artifact.Store
	processedBucket string
}

// NewTabular creates the tabular-preprocess strategy.
func NewTabular(artifacts artifact.Store, processedBucket string) *Tabular {
	if processedBucket == "" {
		processedBucket = "processed-data"
	}
	return &Tabular{artifacts: artifacts, processedBucket: processedBucket}
}

// Kind returns the job kind this strategy handles.
func (t *Tabular) Kind() string { return KindTabular }

// Run loads the source CSV, applies the configured cleaning steps, and
// writes the cleaned CSV to the processed bucket.
func (t *Tabular) Run(ctx context.Context, j *job.Job, mon strategy.Monitor) (*strategy.Outcome, error) {
	var cfg tabularJobConfig
	if err := unmarshalConfig(j.Config, &cfg); err != nil {
		return nil, err
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 5)

	raw, err := loadSource(ctx, t.artifacts, []byte(cfg.CSV), cfg.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("tabular-preprocess: %w", err)
	}

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tabular-preprocess: parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("tabular-preprocess: empty input")
	}
	header, rows := records[0], records[1:]
	inputRows := len(rows)

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 20)

	var applied []string

	if len(cfg.Columns) > 0 {
		header, rows, err = projectColumns(header, rows, cfg.Columns)
		if err != nil {
			return nil, fmt.Errorf("tabular-preprocess: %w", err)
		}
		applied = append(applied, "select_columns")
	}

	droppedEmpty := 0
	if cfg.DropEmptyRows {
		kept := rows[:0]
		for _, row := range rows {
			if isEmptyRow(row) {
				droppedEmpty++
				continue
			}
			kept = append(kept, row)
		}
		rows = kept
		applied = append(applied, "drop_empty_rows")
	}

	droppedDup := 0
	if cfg.DropDuplicates {
		seen := make(map[string]struct{}, len(rows))
		kept := rows[:0]
		for _, row := range rows {
			sig := strings.Join(row, "\x1f")
			if _, dup := seen[sig]; dup {
				droppedDup++
				continue
			}
			seen[sig] = struct{}{}
			kept = append(kept, row)
		}
		rows = kept
		applied = append(applied, "drop_duplicates")
	}

	nulls := make(map[string]any, len(header))
	for i, col := range header {
		count := 0
		for _, row := range rows {
			if i < len(row) && strings.TrimSpace(row[i]) == "" {
				count++
			}
		}
		nulls[col] = count
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 80)

	var out bytes.Buffer
	w := csv.NewWriter(&out)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("tabular-preprocess: write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("tabular-preprocess: write rows: %w", err)
	}

	key := fmt.Sprintf("%s/data.csv", j.ID.String())
	if err := t.artifacts.Put(ctx, t.processedBucket, key, bytes.NewReader(out.Bytes()), int64(out.Len()), "text/csv"); err != nil {
		return nil, fmt.Errorf("tabular-preprocess: write output: %w", err)
	}

	return &strategy.Outcome{
		Data: map[string]any{
			"columns":         header,
			"transformations": applied,
		},
		Stats: map[string]any{
			"input_rows":         inputRows,
			"output_rows":        len(rows),
			"dropped_empty":      droppedEmpty,
			"dropped_duplicates": droppedDup,
			"null_counts":        nulls,
		},
		OutputRef: artifact.Ref(t.processedBucket, key),
	}, nil
}

// projectColumns reorders rows down to the requested columns.
func projectColumns(header []string, rows [][]string, want []string) ([]string, [][]string, error) {
	indices := make([]int, 0, len(want))
	for _, col := range want {
		idx := slices.Index(header, col)
		if idx < 0 {
			return nil, nil, fmt.Errorf("column %q not found", col)
		}
		indices = append(indices, idx)
	}

	projected := make([][]string, len(rows))
	for ri, row := range rows {
		out := make([]string, len(indices))
		for oi, idx := range indices {
			if idx < len(row) {
				out[oi] = row[idx]
			}
		}
		projected[ri] = out
	}
	return slices.Clone(want), projected, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
