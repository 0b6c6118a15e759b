package memory_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/quarryhq/quarry/artifact"
	"github.com/quarryhq/quarry/artifact/memory"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	body := "<html><body>hi</body></html>"
	if err := s.Put(ctx, "raw-data", "job_x/page.html", strings.NewReader(body), int64(len(body)), "text/html"); err != nil {
		t.Fatalf("put: %v", err)
	}

	obj, err := s.Get(ctx, "raw-data", "job_x/page.html")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer obj.Body.Close()

	got, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != body {
		t.Errorf("body = %q, want %q", got, body)
	}
	if obj.ContentType != "text/html" {
		t.Errorf("content type = %q, want text/html", obj.ContentType)
	}
	if obj.Size != int64(len(body)) {
		t.Errorf("size = %d, want %d", obj.Size, len(body))
	}
}

func TestGet_NotFound(t *testing.T) {
	s := memory.New()
	if _, err := s.Get(context.Background(), "raw-data", "missing"); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("get missing = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.Put(ctx, "b", "k", strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(ctx, "b", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "b", "k"); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("get deleted = %v, want ErrNotFound", err)
	}
	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, "b", "k"); err != nil {
		t.Errorf("delete missing = %v, want nil", err)
	}
}

func TestPresignedURL(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.PresignedURL(ctx, "b", "k", time.Minute); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("presign missing = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "b", "k", strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	u, err := s.PresignedURL(ctx, "b", "k", time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "b/k") {
		t.Errorf("url = %q, want it to reference b/k", u)
	}
}

func TestRefRoundTrip(t *testing.T) {
	ref := artifact.Ref("raw-data", "job_x/page.html")
	if ref != "raw-data/job_x/page.html" {
		t.Fatalf("ref = %q", ref)
	}
	bucket, key := artifact.SplitRef(ref)
	if bucket != "raw-data" || key != "job_x/page.html" {
		t.Errorf("split = %q/%q", bucket, key)
	}
	if b, k := artifact.SplitRef("nokey"); b != "" || k != "" {
		t.Errorf("malformed split = %q/%q, want empty", b, k)
	}
}
