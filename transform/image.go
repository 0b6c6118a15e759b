package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/job"
	"github.com/quarryhq/quarry/strategy"
)

// KindImage is the job kind handled by the Image strategy.
const KindImage = "image-preprocess"

// imageJobConfig is the per-job configuration for image processing.
type imageJobConfig struct {
	SourceRef string `json:"source_ref"`

	// Width/Height resize the image. A single zero dimension preserves the
	// aspect ratio; both zero skips resizing.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Grayscale bool `json:"grayscale,omitempty"`

	// Format is "png" or "jpeg". Empty keeps the decoded format.
	Format string `json:"format,omitempty"`

	// Quality is the JPEG quality, 1-100. Zero uses the encoder default.
	Quality int `json:"quality,omitempty"`
}

// Image decodes, resizes, grayscales, and re-encodes a stored image.
type Image struct {
	artifacts       artifact.Store
	processedBucket string
}

// NewImage creates the image-preprocess strategy.
func NewImage(artifacts artifact.Store, processedBucket string) *Image {
	if processedBucket == "" {
		processedBucket = "processed-data"
	}
	return &Image{artifacts: artifacts, processedBucket: processedBucket}
}

// Kind returns the job kind this strategy handles.
func (t *Image) Kind() string { return KindImage }

// Run loads the source image, applies the configured operations, and writes
// the re-encoded image to the processed bucket.
func (t *Image) Run(ctx context.Context, j *job.Job, mon strategy.Monitor) (*strategy.Outcome, error) {
	var cfg imageJobConfig
	if err := unmarshalConfig(j.Config, &cfg); err != nil {
		return nil, err
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 5)

	raw, err := loadSource(ctx, t.artifacts, nil, cfg.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("image-preprocess: %w", err)
	}

	src, srcFormat, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("image-preprocess: decode: %w", err)
	}
	srcBounds := src.Bounds()

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 20)

	var applied []string
	out := src

	if cfg.Width > 0 || cfg.Height > 0 {
		out = resize(out, cfg.Width, cfg.Height)
		applied = append(applied, "resize")
	}
	if cfg.Grayscale {
		out = grayscale(out)
		applied = append(applied, "grayscale")
	}

	if err := mon.Checkpoint(); err != nil {
		return nil, err
	}
	mon.Progress(ctx, 80)

	format := cfg.Format
	if format == "" {
		format = srcFormat
	}

	var buf bytes.Buffer
	var contentType string
	switch format {
	case "png":
		contentType = "image/png"
		if err := png.Encode(&buf, out); err != nil {
			return nil, fmt.Errorf("image-preprocess: encode png: %w", err)
		}
	case "jpeg", "jpg":
		format = "jpeg"
		contentType = "image/jpeg"
		var opts *jpeg.Options
		if cfg.Quality > 0 {
			opts = &jpeg.Options{Quality: cfg.Quality}
		}
		if err := jpeg.Encode(&buf, out, opts); err != nil {
			return nil, fmt.Errorf("image-preprocess: encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("image-preprocess: unsupported output format %q", format)
	}

	key := fmt.Sprintf("%s/image.%s", j.ID.String(), extension(format))
	if err := t.artifacts.Put(ctx, t.processedBucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), contentType); err != nil {
		return nil, fmt.Errorf("image-preprocess: write output: %w", err)
	}

	outBounds := out.Bounds()
	return &strategy.Outcome{
		Data: map[string]any{
			"format":          format,
			"transformations": applied,
		},
		Stats: map[string]any{
			"source_width":  srcBounds.Dx(),
			"source_height": srcBounds.Dy(),
			"output_width":  outBounds.Dx(),
			"output_height": outBounds.Dy(),
			"source_bytes":  len(raw),
			"output_bytes":  buf.Len(),
			"source_format": srcFormat,
		},
		OutputRef: artifact.Ref(t.processedBucket, key),
	}, nil
}

// resize scales the image to the requested size. A zero dimension is derived
// from the other to preserve aspect ratio.
func resize(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if width <= 0 {
		width = b.Dx() * height / b.Dy()
	}
	if height <= 0 {
		height = b.Dy() * width / b.Dx()
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func grayscale(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewGray(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
