package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

// KindText is the job kind handled by the Text strategy.
const KindText = "text-preprocess"

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	punctRe      = regexp.MustCompile(`[!-/:-@\[-` + "`" + `{-~]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// defaultStopwords is the built-in English stopword list.
var defaultStopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
		"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
		"such", "that", "the", "their", "then", "there", "these", "they",
		"this", "to", "was", "will", "with",
	} {
		defaultStopwords[w] = struct{}{}
	}
}

// textJobConfig is the per-job configuration for text cleaning.
type textJobConfig struct {
	// Text is the inline input. When empty, SourceRef is fetched instead.
	Text      string `json:"text,omitempty"`
	SourceRef string `json:"source_ref,omitempty"`

	Lowercase          bool     `json:"lowercase,omitempty"`
	StripHTML          bool     `json:"strip_html,omitempty"`
	RemovePunctuation  bool     `json:"remove_punctuation,omitempty"`
	CollapseWhitespace bool     `json:"collapse_whitespace,omitempty"`
	RemoveStopwords    bool     `json:"remove_stopwords,omitempty"`
	CustomStopwords    []string `json:"custom_stopwords,omitempty"`
}

// Text cleans free-form text: HTML stripping, case folding, punctuation and
// stopword removal.
type Text struct {
	artifacts       artifact.Store
	processedBucket string
}

// NewText creates the text-preprocess strategy.
func NewText(artifacts artifact.Store, processedBucket string) *Text {
	if processedBucket == "" {
		processedBucket = "processed-data"
	}
	return &Text{artifacts: artifacts, processedBucket: processedBucket}
}

// Kind returns the job kind this strategy handles.
func (t *Text) Kind() string { return KindText }

// Run loads the source text, applies the configured steps in order, and
// writes the cleaned text to the processed bucket.
func (t *Text) Run(ctx context.Context, j *job.Job, mon strategy.Monitor) (*strategy.Outcome, error) {
	var cfg textJobConfig
	if err := unmarshalConfig(j.Config, &cfg); err != nil {
		return nil, err
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 5)

	raw, err := loadSource(ctx, t.artifacts, []byte(cfg.Text), cfg.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("text-preprocess: %w", err)
	}
	original := string(raw)

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 20)

	text := original
	var applied []string

	if cfg.StripHTML {
		text = htmlTagRe.ReplaceAllString(text, " ")
		applied = append(applied, "strip_html")
	}
	if cfg.Lowercase {
		text = strings.ToLower(text)
		applied = append(applied, "lowercase")
	}
	if cfg.RemovePunctuation {
		text = punctRe.ReplaceAllString(text, "")
		applied = append(applied, "remove_punctuation")
	}
	if cfg.RemoveStopwords {
		text = removeStopwords(text, cfg.CustomStopwords)
		applied = append(applied, "remove_stopwords")
	}
	if cfg.CollapseWhitespace {
		text = whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
		applied = append(applied, "collapse_whitespace")
	}

	tokens := strings.Fields(text)
	unique := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		unique[tok] = struct{}{}
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 80)

	key := fmt.Sprintf("%s/text.txt", j.ID.String())
	if err := t.artifacts.Put(ctx, t.processedBucket, key, strings.NewReader(text), int64(len(text)), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("text-preprocess: write output: %w", err)
	}

	return &strategy.Outcome{
		Data: map[string]any{
			"transformations": applied,
		},
		Stats: map[string]any{
			"original_chars":  len(original),
			"processed_chars": len(text),
			"token_count":     len(tokens),
			"unique_tokens":   len(unique),
		},
		OutputRef: artifact.Ref(t.processedBucket, key),
	}, nil
}

// removeStopwords drops built-in and custom stopwords, preserving the
// remaining word order.
func removeStopwords(text string, custom []string) string {
	extra := make(map[string]struct{}, len(custom))
	for _, w := range custom {
		extra[strings.ToLower(w)] = struct{}{}
	}

	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		lw := strings.ToLower(w)
		if _, ok := defaultStopwords[lw]; ok {
			continue
		}
		if _, ok := extra[lw]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
