package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

// KindFetch is the job kind handled by the Fetch strategy.
const KindFetch = "basic-scrape"

const defaultUserAgent = "quarry/1.0 (+https://github.com/quarryhq/quarry)"

// FetchConfig tunes the Fetch strategy. Zero values pick sensible defaults.
type FetchConfig struct {
	// UserAgent is sent on every request.
	UserAgent string

	// Timeout bounds a single request attempt.
	Timeout time.Duration

	// MaxRetries is how many times a failed request is retried.
	MaxRetries int

	// RetryDelay is the pause between retry attempts.
	RetryDelay time.Duration

	// RateLimit caps requests per second per host. Zero disables limiting.
	RateLimit float64

	// RawBucket is the artifact bucket raw pages are archived into.
	RawBucket string

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// fetchJobConfig is the per-job configuration carried in job.Config.
type fetchJobConfig struct {
	URL       string              `json:"url"`
	Headers   map[string]string   `json:"headers,omitempty"`
	Selectors map[string]Selector `json:"selectors,omitempty"`
}

// Fetch scrapes a page over plain HTTP and extracts fields with CSS or
// XPath selectors.
type Fetch struct {
	artifacts artifact.Store
	cfg       FetchConfig
	client    *http.Client

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetch creates the basic-scrape strategy.
func NewFetch(artifacts artifact.Store, cfg FetchConfig) *Fetch {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RawBucket == "" {
		cfg.RawBucket = "raw-data"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetch{
		artifacts: artifacts,
		cfg:       cfg,
		client:    client,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Kind returns the job kind this strategy handles.
func (f *Fetch) Kind() string { return KindFetch }

// Run fetches the configured URL, extracts the selector fields, and
// archives the raw HTML.
func (f *Fetch) Run(ctx context.Context, j *job.Job, mon strategy.Monitor) (*strategy.Outcome, error) {
	var cfg fetchJobConfig
	if err := unmarshalConfig(j.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("basic-scrape: url is required")
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}

	if err := f.waitRate(ctx, cfg.URL); err != nil {
		return nil, err
	}

	start := time.Now()
	body, resp, err := f.get(ctx, cfg.URL, cfg.Headers)
	if err != nil {
		return nil, err
	}
	fetchTime := time.Since(start)

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("basic-scrape: unsupported content type %q", contentType)
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 50)

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("basic-scrape: parse html: %w", err)
	}

	data, err := ExtractFields(root, cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("basic-scrape: %w", err)
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 80)

	key := fmt.Sprintf("%s/page.html", j.ID.String())
	if err := f.artifacts.Put(ctx, f.cfg.RawBucket, key, bytes.NewReader(body), int64(len(body)), "text/html"); err != nil {
		return nil, fmt.Errorf("basic-scrape: archive page: %w", err)
	}

	meta := PageMetadata(root)
	meta["content_type"] = contentType
	meta["status_code"] = resp.StatusCode

	return &strategy.Outcome{
		Data: data,
		Stats: map[string]any{
			"status_code":  resp.StatusCode,
			"content_type": contentType,
			"bytes":        len(body),
			"fetch_ms":     fetchTime.Milliseconds(),
			"metadata":     meta,
		},
		OutputRef: artifact.Ref(f.cfg.RawBucket, key),
	}, nil
}

// get performs the request with retries. Network errors and 5xx responses
// are retried; any other non-200 fails immediately.
func (f *Fetch) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, *http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(f.cfg.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("basic-scrape: build request: %w", err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("basic-scrape: request %s: %w", rawURL, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("basic-scrape: read body: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, resp, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("basic-scrape: HTTP error: %d", resp.StatusCode)
			continue
		default:
			return nil, nil, fmt.Errorf("basic-scrape: HTTP error: %d", resp.StatusCode)
		}
	}
	return nil, nil, lastErr
}

// waitRate blocks until the per-host limiter admits the request.
func (f *Fetch) waitRate(ctx context.Context, rawURL string) error {
	if f.cfg.RateLimit <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("basic-scrape: parse url: %w", err)
	}

	f.limitMu.Lock()
	limiter, ok := f.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.RateLimit), 1)
		f.limiters[u.Host] = limiter
	}
	f.limitMu.Unlock()

	return limiter.Wait(ctx)
}
