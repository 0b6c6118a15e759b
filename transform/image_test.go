package transform_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"testing"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/artifact/memory"
	"github.com/quarryhq/quarry/strategy"
	"github.com/quarryhq/quarry/transform"
)

// seedImage writes a 40x20 red PNG into the store and returns its ref.
func seedImage(t *testing.T, store *memory.Store) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.Put(context.Background(), "raw-data", "in/pic.png", bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/png"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return "raw-data/in/pic.png"
}

func decodeOutput(t *testing.T, store *memory.Store, ref string) image.Image {
	t.Helper()
	bucket, key := artifact.SplitRef(ref)
	obj, err := store.Get(context.Background(), bucket, key)
	if err != nil {
		t.Fatalf("get %s: %v", ref, err)
	}
	defer obj.Body.Close()
	img, _, err := image.Decode(obj.Body)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func TestImage_ResizePreservesAspect(t *testing.T) {
	artifacts := memory.New()
	ref := seedImage(t, artifacts)
	strat := transform.NewImage(artifacts, "processed-data")

	j := makeJob(t, transform.KindImage, map[string]any{
		"source_ref": ref,
		"width":      20,
	})

	out, err := strat.Run(context.Background(), j, strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	img := decodeOutput(t, artifacts, out.OutputRef)
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("size = %dx%d, want 20x10", img.Bounds().Dx(), img.Bounds().Dy())
	}
	if out.Stats["output_width"] != 20 || out.Stats["output_height"] != 10 {
		t.Errorf("stats size = %vx%v", out.Stats["output_width"], out.Stats["output_height"])
	}
}

func TestImage_GrayscaleJPEG(t *testing.T) {
	artifacts := memory.New()
	ref := seedImage(t, artifacts)
	strat := transform.NewImage(artifacts, "")

	j := makeJob(t, transform.KindImage, map[string]any{
		"source_ref": ref,
		"grayscale":  true,
		"format":     "jpeg",
		"quality":    80,
	})

	out, err := strat.Run(context.Background(), j, strategy.NopMonitor{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Data["format"] != "jpeg" {
		t.Errorf("format = %v", out.Data["format"])
	}

	img := decodeOutput(t, artifacts, out.OutputRef)
	r, g, b, _ := img.At(5, 5).RGBA()
	if r != g || g != b {
		t.Errorf("pixel not gray: r=%d g=%d b=%d", r, g, b)
	}
}

func TestImage_UnsupportedFormat(t *testing.T) {
	artifacts := memory.New()
	ref := seedImage(t, artifacts)
	strat := transform.NewImage(artifacts, "")

	j := makeJob(t, transform.KindImage, map[string]any{
		"source_ref": ref,
		"format":     "webp",
	})
	if _, err := strat.Run(context.Background(), j, strategy.NopMonitor{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestImage_MissingSource(t *testing.T) {
	strat := transform.NewImage(memory.New(), "")
	j := makeJob(t, transform.KindImage, map[string]any{})
	if _, err := strat.Run(context.Background(), j, strategy.NopMonitor{}); err == nil {
		t.Fatal("expected error with no source_ref")
	}
}
