package schema

import (
	"context"
	"encoding/json"
)

// Tool is the interface all LLM-callable tools must satisfy.
//
// Execute returns its outcome as a string in both directions: recoverable
// problems are reported as normal "Error: ..." strings so the model can see
// them and adjust. A non-nil error is converted by the agent loop into an
// error tool-result message; it never aborts the turn.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema (as raw JSON bytes) for this tool's parameters.
	Parameters() json.RawMessage
	Execute(ctx context.Context, params map[string]any) (string, error)
}
