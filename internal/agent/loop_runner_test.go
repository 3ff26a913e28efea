package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/tools"
)

// scriptedProvider returns canned responses in order and records every
// conversation it was called with.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []schema.LLMResponse
	err       error
	calls     []schema.Messages
}

func (p *scriptedProvider) Chat(_ context.Context, messages schema.Messages, _ []map[string]any, _ schema.ChatOptions) (schema.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, messages.Clone())
	if p.err != nil {
		return schema.LLMResponse{}, p.err
	}
	i := len(p.calls) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "fake tool for tests" }
func (t *fakeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t *fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

func strPtr(s string) *string { return &s }

func testSettings() schema.AgentSettings {
	return schema.NewAgentSettings("test-model", 5, 0.7, 1024, 10)
}

func textResponse(text string) schema.LLMResponse {
	return schema.LLMResponse{Content: strPtr(text), FinishReason: "stop"}
}

func toolResponse(calls ...schema.ToolCall) schema.LLMResponse {
	return schema.LLMResponse{ToolCalls: calls, FinishReason: "tool_calls"}
}

func TestLoopRunner_ToolRoundTrip(t *testing.T) {
	var executed []string
	echo := &fakeTool{name: "echo", fn: func(_ context.Context, args map[string]any) (string, error) {
		v, _ := args["v"].(string)
		executed = append(executed, v)
		return "echo:" + v, nil
	}}

	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(
			schema.ToolCall{ID: "c1", Name: "echo", Arguments: map[string]any{"v": "first"}},
			schema.ToolCall{ID: "c2", Name: "echo", Arguments: map[string]any{"v": "second"}},
		),
		textResponse("all done"),
	}}

	runner := newLoopRunner(provider, testSettings())
	tls := tools.NewToolList(echo)
	conversation := schema.NewMessages(schema.NewUserMessage("go"))

	final, turn, toolsUsed := runner.run(context.Background(), conversation, tls, nil)

	if final != "all done" {
		t.Errorf("final = %q", final)
	}
	if len(toolsUsed) != 2 || toolsUsed[0] != "echo" {
		t.Errorf("toolsUsed = %v", toolsUsed)
	}

	// The transcript carries the assistant tool-call entry and both results.
	if len(turn) != 3 {
		t.Fatalf("turn has %d messages, want assistant + 2 tool results", len(turn))
	}
	if turn[0].Role != "assistant" || len(turn[0].ToolCalls) != 2 {
		t.Errorf("turn[0] = %+v", turn[0])
	}
	if turn[1].Role != "tool" || turn[2].Role != "tool" {
		t.Errorf("turn tool results = %+v, %+v", turn[1], turn[2])
	}
	if len(executed) != 2 || executed[0] != "first" || executed[1] != "second" {
		t.Errorf("dispatch order = %v, want [first second]", executed)
	}

	// Second LLM call must see: user, assistant(tool calls), tool result c1, tool result c2.
	second := provider.calls[1].Messages
	if len(second) != 4 {
		t.Fatalf("second call has %d messages, want 4", len(second))
	}
	if second[1].Role != "assistant" || len(second[1].ToolCalls) != 2 {
		t.Errorf("message[1] = %+v, want assistant with 2 tool calls", second[1])
	}
	if second[2].Role != "tool" || second[2].ToolCallID != "c1" || second[2].Content != "echo:first" {
		t.Errorf("message[2] = %+v", second[2])
	}
	if second[3].ToolCallID != "c2" || second[3].Content != "echo:second" {
		t.Errorf("message[3] = %+v", second[3])
	}
}

func TestLoopRunner_ProviderErrorIsTerminal(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("hello"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(), nil)

	if final != "Sorry, I encountered an error calling the LLM." {
		t.Errorf("final = %q", final)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1 (no retry)", provider.callCount())
	}
}

func TestLoopRunner_InBandErrorIsTerminal(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		{Content: strPtr("HTTP 429: rate limit exceeded"), FinishReason: "error"},
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("hello"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(), nil)

	// The backend's diagnostic is the answer the user sees, not a generic one.
	if final != "HTTP 429: rate limit exceeded" {
		t.Errorf("final = %q", final)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
}

func TestLoopRunner_InBandErrorWithoutDetail(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		{FinishReason: "error"},
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("hello"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(), nil)

	if final != "Sorry, I encountered an error calling the LLM." {
		t.Errorf("final = %q", final)
	}
}

func TestLoopRunner_UnknownToolIsRecoverable(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(schema.ToolCall{ID: "c1", Name: "teleport", Arguments: map[string]any{}}),
		textResponse("recovered"),
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("go"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(), nil)

	if final != "recovered" {
		t.Errorf("final = %q", final)
	}
	second := provider.calls[1].Messages
	result := second[len(second)-1]
	if result.Role != "tool" || result.Content != "Error: Tool 'teleport' not found" {
		t.Errorf("tool result = %+v", result)
	}
}

func TestLoopRunner_ToolErrorBecomesResult(t *testing.T) {
	boom := &fakeTool{name: "boom", fn: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("disk full")
	}}
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(schema.ToolCall{ID: "c1", Name: "boom", Arguments: map[string]any{}}),
		textResponse("noted"),
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("go"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(boom), nil)

	if final != "noted" {
		t.Errorf("final = %q", final)
	}
	second := provider.calls[1].Messages
	result := second[len(second)-1]
	if result.Content != "Error: disk full" {
		t.Errorf("tool result = %+v", result)
	}
}

func TestLoopRunner_ToolPanicIsRecovered(t *testing.T) {
	angry := &fakeTool{name: "angry", fn: func(context.Context, map[string]any) (string, error) {
		panic("nil map write")
	}}
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(schema.ToolCall{ID: "c1", Name: "angry", Arguments: map[string]any{}}),
		textResponse("survived"),
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("go"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(angry), nil)

	if final != "survived" {
		t.Errorf("final = %q", final)
	}
	second := provider.calls[1].Messages
	result := second[len(second)-1].Content.(string)
	if !strings.Contains(result, "panicked") {
		t.Errorf("tool result = %q, want panic report", result)
	}
}

func TestLoopRunner_IterationCap(t *testing.T) {
	loopy := &fakeTool{name: "loopy", fn: func(context.Context, map[string]any) (string, error) {
		return "again", nil
	}}
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(schema.ToolCall{ID: "c1", Name: "loopy", Arguments: map[string]any{}}),
	}}
	settings := testSettings()
	settings.MaxIter = 3
	runner := newLoopRunner(provider, settings)

	conversation := schema.NewMessages(schema.NewUserMessage("go"))
	final, _, toolsUsed := runner.run(context.Background(), conversation, tools.NewToolList(loopy), nil)

	if !strings.Contains(final, "maximum number of tool iterations") {
		t.Errorf("final = %q", final)
	}
	if provider.callCount() != 3 {
		t.Errorf("provider called %d times, want 3", provider.callCount())
	}
	if len(toolsUsed) != 3 {
		t.Errorf("toolsUsed = %v", toolsUsed)
	}
}

func TestLoopRunner_StripsThinkBlocks(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		textResponse("<think>secret reasoning</think>the answer is 42"),
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("question"))
	final, _, _ := runner.run(context.Background(), conversation, tools.NewToolList(), nil)

	if final != "the answer is 42" {
		t.Errorf("final = %q", final)
	}
}

func TestLoopRunner_ProgressCallback(t *testing.T) {
	echo := &fakeTool{name: "echo", fn: func(context.Context, map[string]any) (string, error) {
		return "ok", nil
	}}
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		{
			Content:      strPtr("Let me check that."),
			ToolCalls:    []schema.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"v": "weather"}}},
			FinishReason: "tool_calls",
		},
		textResponse("done"),
	}}
	runner := newLoopRunner(provider, testSettings())

	var progress []string
	conversation := schema.NewMessages(schema.NewUserMessage("go"))
	runner.run(context.Background(), conversation, tools.NewToolList(echo), func(s string) {
		progress = append(progress, s)
	})

	if len(progress) != 2 {
		t.Fatalf("progress = %v, want partial text + tool hint", progress)
	}
	if progress[0] != "Let me check that." {
		t.Errorf("progress[0] = %q", progress[0])
	}
	if !strings.Contains(progress[1], "echo") {
		t.Errorf("progress[1] = %q, want tool hint", progress[1])
	}
}

func TestLoopRunner_ProgressFiresPerToolCall(t *testing.T) {
	var events []string
	echo := &fakeTool{name: "echo", fn: func(_ context.Context, args map[string]any) (string, error) {
		v, _ := args["v"].(string)
		events = append(events, "exec:"+v)
		return "ok", nil
	}}

	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(
			schema.ToolCall{ID: "c1", Name: "echo", Arguments: map[string]any{"v": "first"}},
			schema.ToolCall{ID: "c2", Name: "echo", Arguments: map[string]any{"v": "second"}},
		),
		textResponse("done"),
	}}
	runner := newLoopRunner(provider, testSettings())

	conversation := schema.NewMessages(schema.NewUserMessage("go"))
	runner.run(context.Background(), conversation, tools.NewToolList(echo), func(s string) {
		events = append(events, "hint:"+s)
	})

	// One hint per dispatch, each before its tool executes.
	want := []string{`hint:echo("first")`, "exec:first", `hint:echo("second")`, "exec:second"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}
