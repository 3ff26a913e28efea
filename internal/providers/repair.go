package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// repairJSON parses a tool-argument string, retrying with progressively more
// lenient strategies. Some models emit truncated or slightly malformed JSON
// for tool calls; a pure strict parse would drop the whole call.
//
// Order: strict unmarshal, then trim trailing garbage and close the object,
// then cut at the last complete "}". An empty string is a valid empty
// argument map. The error return carries the original input for logging.
func repairJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	// Attempt 1: trim trailing non-JSON characters and re-close the object.
	stripped := strings.TrimRight(raw, " \t\n\r}]")
	if !strings.HasSuffix(stripped, "}") {
		stripped += "}"
	}
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return out, nil
	}

	// Attempt 2: cut at the last complete JSON object.
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return out, nil
		}
	}

	return map[string]any{}, fmt.Errorf("cannot repair JSON: %s", raw)
}
