package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/quarryhq/quarry/artifact"
)

// unmarshalConfig decodes a job's JSON config. An empty config leaves the
// target at its zero value.
func unmarshalConfig(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode job config: %w", err)
	}
	return nil
}

// loadSource resolves the job's input bytes: inline data wins, otherwise the
// "bucket/key" reference is fetched from the artifact store.
func loadSource(ctx context.Context, artifacts artifact.Store, inline []byte, sourceRef string) ([]byte, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	if sourceRef == "" {
		return nil, fmt.Errorf("either inline data or source_ref is required")
	}

	bucket, key := artifact.SplitRef(sourceRef)
	if bucket == "" {
		return nil, fmt.Errorf("malformed source_ref %q, want bucket/key", sourceRef)
	}

	obj, err := artifacts.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", sourceRef, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", sourceRef, err)
	}
	return data, nil
}
