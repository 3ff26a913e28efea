package schema

import "context"

// ChatOptions configures a single LLM chat request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewChatOptions(model string, maxTokens int, temperature float64) ChatOptions {
	return ChatOptions{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// LLMResponse is the normalised response from any LLM provider.
//
// FinishReason is one of "stop", "tool_calls", "length", or "error".
// Transport and backend failures are reported in-band: the provider returns
// FinishReason "error" with the failure text in Content and a nil error,
// so callers handle every outcome through the same value.
type LLMResponse struct {
	Content          *string // nil when the response contains only tool calls
	ToolCalls        []ToolCall
	FinishReason     string
	Usage            map[string]int // "input_tokens", "output_tokens", "total_tokens"
	ReasoningContent *string        // thinking block, when the model emits one
}

// HasToolCalls reports whether the response contains at least one tool call.
func (r LLMResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// LLMProvider is the interface every LLM backend must satisfy.
// tools is a list of OpenAI function definitions; pass nil for plain chat.
type LLMProvider interface {
	Chat(ctx context.Context, messages Messages, tools []map[string]any, opts ChatOptions) (LLMResponse, error)
	DefaultModel() string
}
