package extract

import (
	"encoding/json"
	"fmt"
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
