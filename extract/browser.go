package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

// KindBrowser is the job kind handled by the Browser strategy.
const KindBrowser = "browser-scrape"

// BrowserConfig tunes the Browser strategy.
type BrowserConfig struct {
	// UserAgent is presented by the headless browser.
	UserAgent string

	// Timeout bounds the whole page load and extraction.
	Timeout time.Duration

	// RawBucket is the artifact bucket archives are written into.
	RawBucket string
}

// browserJobConfig is the per-job configuration for rendered scrapes.
type browserJobConfig struct {
	URL             string              `json:"url"`
	Cookies         map[string]string   `json:"cookies,omitempty"`
	WaitForSelector string              `json:"wait_for_selector,omitempty"`
	WaitSeconds     float64             `json:"wait_seconds,omitempty"`
	Screenshot      bool                `json:"screenshot,omitempty"`
	Selectors       map[string]Selector `json:"selectors,omitempty"`
}

// Browser scrapes JavaScript-rendered pages through headless Chrome. The
// rendered DOM is extracted with the same selector machinery as the basic
// scraper.
type Browser struct {
	artifacts artifact.Store
	cfg       BrowserConfig
}

// NewBrowser creates the browser-scrape strategy.
func NewBrowser(artifacts artifact.Store, cfg BrowserConfig) *Browser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RawBucket == "" {
		cfg.RawBucket = "raw-data"
	}
	return &Browser{artifacts: artifacts, cfg: cfg}
}

// Kind returns the job kind this strategy handles.
func (b *Browser) Kind() string { return KindBrowser }

// Run renders the page, extracts the selector fields from the final DOM,
// and archives the rendered HTML plus an optional screenshot.
func (b *Browser) Run(ctx context.Context, j *job.Job, mon strategy.Monitor) (*strategy.Outcome, error) {
	var cfg browserJobConfig
	if err := unmarshalConfig(j.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("browser-scrape: url is required")
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserAgent(b.cfg.UserAgent),
		)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, b.cfg.Timeout)
	defer runCancel()

	tasks := chromedp.Tasks{setCookies(cfg.URL, cfg.Cookies), chromedp.Navigate(cfg.URL)}
	if cfg.WaitForSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(cfg.WaitForSelector, chromedp.ByQuery))
	}
	if cfg.WaitSeconds > 0 {
		tasks = append(tasks, chromedp.Sleep(time.Duration(cfg.WaitSeconds*float64(time.Second))))
	}

	var rendered string
	tasks = append(tasks, chromedp.OuterHTML("html", &rendered, chromedp.ByQuery))

	var screenshot []byte
	if cfg.Screenshot {
		tasks = append(tasks, chromedp.CaptureScreenshot(&screenshot))
	}

	start := time.Now()
	if err := chromedp.Run(runCtx, tasks); err != nil {
		return nil, fmt.Errorf("browser-scrape: render %s: %w", cfg.URL, err)
	}
	renderTime := time.Since(start)

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 50)

	root, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return nil, fmt.Errorf("browser-scrape: parse rendered html: %w", err)
	}

	data, err := ExtractFields(root, cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("browser-scrape: %w", err)
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 80)

	stats := map[string]any{
		"render_ms": renderTime.Milliseconds(),
		"bytes":     len(rendered),
		"metadata":  PageMetadata(root),
	}

	key := fmt.Sprintf("%s/page.html", j.ID.String())
	if err := b.artifacts.Put(ctx, b.cfg.RawBucket, key, strings.NewReader(rendered), int64(len(rendered)), "text/html"); err != nil {
		return nil, fmt.Errorf("browser-scrape: archive page: %w", err)
	}

	if len(screenshot) > 0 {
		shotKey := fmt.Sprintf("%s/screenshot.png", j.ID.String())
		if err := b.artifacts.Put(ctx, b.cfg.RawBucket, shotKey, bytes.NewReader(screenshot), int64(len(screenshot)), "image/png"); err != nil {
			return nil, fmt.Errorf("browser-scrape: archive screenshot: %w", err)
		}
		stats["screenshot_ref"] = artifact.Ref(b.cfg.RawBucket, shotKey)
	}

	return &strategy.Outcome{
		Data:      data,
		Stats:     stats,
		OutputRef: artifact.Ref(b.cfg.RawBucket, key),
	}, nil
}

// setCookies installs the job's cookies scoped to the target URL before
// navigation.
func setCookies(rawURL string, cookies map[string]string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for name, value := range cookies {
			if err := network.SetCookie(name, value).WithURL(rawURL).Do(ctx); err != nil {
				return fmt.Errorf("set cookie %q: %w", name, err)
			}
		}
		return nil
	})
}
