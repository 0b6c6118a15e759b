package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

// KindAPI is the job kind handled by the API strategy.
const KindAPI = "api-scrape"

// apiJobConfig is the per-job configuration for API pulls.
type apiJobConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`

	// Paths maps result fields to gjson path expressions. When empty the
	// whole response document becomes the result data.
	Paths map[string]string `json:"paths,omitempty"`
}

// API pulls a JSON endpoint and projects fields out of the response with
// gjson path expressions.
type API struct {
	artifacts artifact.Store
	cfg       FetchConfig
	client    *http.Client
}

// NewAPI creates the api-scrape strategy. It shares FetchConfig with the
// basic scraper since the HTTP knobs are identical.
func NewAPI(artifacts artifact.Store, cfg FetchConfig) *API {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RawBucket == "" {
		cfg.RawBucket = "raw-data"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &API{artifacts: artifacts, cfg: cfg, client: client}
}

// Kind returns the job kind this strategy handles.
func (a *API) Kind() string { return KindAPI }

// Run fetches the endpoint, projects the configured paths, and archives the
// raw response body.
func (a *API) Run(ctx context.Context, j *job.Job, mon strategy.Monitor) (*strategy.Outcome, error) {
	var cfg apiJobConfig
	if err := unmarshalConfig(j.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("api-scrape: url is required")
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("api-scrape: build request: %w", err)
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api-scrape: request %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api-scrape: HTTP error: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("api-scrape: unsupported content type %q", contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api-scrape: read body: %w", err)
	}
	fetchTime := time.Since(start)

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 50)

	data, err := projectPaths(body, cfg.Paths)
	if err != nil {
		return nil, err
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 80)

	key := fmt.Sprintf("%s/response.json", j.ID.String())
	if err := a.artifacts.Put(ctx, a.cfg.RawBucket, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return nil, fmt.Errorf("api-scrape: archive response: %w", err)
	}

	return &strategy.Outcome{
		Data: data,
		Stats: map[string]any{
			"status_code":  resp.StatusCode,
			"content_type": contentType,
			"bytes":        len(body),
			"fetch_ms":     fetchTime.Milliseconds(),
		},
		OutputRef: artifact.Ref(a.cfg.RawBucket, key),
	}, nil
}

// projectPaths applies the gjson path map. With no paths the whole document
// is decoded into the result.
func projectPaths(body []byte, paths map[string]string) (map[string]any, error) {
	if len(paths) == 0 {
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("api-scrape: decode response: %w", err)
		}
		return doc, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("api-scrape: response is not valid JSON")
	}

	data := make(map[string]any, len(paths))
	for field, path := range paths {
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			data[field] = nil
			continue
		}
		data[field] = res.Value()
	}
	return data, nil
}
