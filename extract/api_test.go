package extract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/artifact/memory"
	"github.com/quarryhq/quarry/extract"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

const apiResponse = `{
  "meta": {"total": 2},
  "items": [
    {"name": "alpha", "price": 42.0},
    {"name": "beta", "price": 7.5}
  ]
}`

func apiJob(t *testing.T, cfg map[string]any) *job.Job {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return job.New(extract.KindAPI, raw, 0)
}

func jsonServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, apiResponse)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAPI_ProjectsPaths(t *testing.T) {
	srv := jsonServer(t)
	artifacts := memory.New()
	a := extract.NewAPI(artifacts, extract.FetchConfig{})

	j := apiJob(t, map[string]any{
		"url": srv.URL,
		"paths": map[string]string{
			"total":      "meta.total",
			"first_name": "items.0.name",
			"names":      "items.#.name",
			"missing":    "meta.nope",
		},
	})

	out, err := a.Run(context.Background(), j, strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.Data["total"] != float64(2) {
		t.Errorf("total = %v", out.Data["total"])
	}
	if out.Data["first_name"] != "alpha" {
		t.Errorf("first_name = %v", out.Data["first_name"])
	}
	names := out.Data["names"].([]any)
	if len(names) != 2 || names[1] != "beta" {
		t.Errorf("names = %v", names)
	}
	if out.Data["missing"] != nil {
		t.Errorf("missing path must be nil, got %v", out.Data["missing"])
	}

	bucket, key := artifact.SplitRef(out.OutputRef)
	if _, err := artifacts.Get(context.Background(), bucket, key); err != nil {
		t.Errorf("archived response missing: %v", err)
	}
}

func TestAPI_WholeDocumentWithoutPaths(t *testing.T) {
	srv := jsonServer(t)
	a := extract.NewAPI(memory.New(), extract.FetchConfig{})

	out, err := a.Run(context.Background(), apiJob(t, map[string]any{"url": srv.URL}), strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	meta, ok := out.Data["meta"].(map[string]any)
	if !ok || meta["total"] != float64(2) {
		t.Errorf("data = %v", out.Data)
	}
}

func TestAPI_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	a := extract.NewAPI(memory.New(), extract.FetchConfig{})
	if _, err := a.Run(context.Background(), apiJob(t, map[string]any{"url": srv.URL}), strategy.NopMonitor{}); err == nil {
		t.Fatal("expected error for non-JSON content type")
	}
}

func TestAPI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := extract.NewAPI(memory.New(), extract.FetchConfig{})
	if _, err := a.Run(context.Background(), apiJob(t, map[string]any{"url": srv.URL}), strategy.NopMonitor{}); err == nil {
		t.Fatal("expected error for 500")
	}
}
