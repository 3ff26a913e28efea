package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/session"
	"github.com/amberseal/amberseal/internal/tools"
)

func newTestLoop(t *testing.T, provider schema.LLMProvider, registry *tools.Registry) (*AgentLoop, *bus.MessageBus) {
	t.Helper()
	ws := t.TempDir()

	sessions, err := session.NewManager(ws)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := NewMemoryStore(ws)
	if err != nil {
		t.Fatal(err)
	}

	b := bus.NewMessageBus(16)
	cb := NewContextBuilder(ws, "", mem)
	return NewAgentLoop(b, provider, testSettings(), sessions, mem, registry, cb), b
}

func TestProcessDirect_SavesTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("hello back")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	got := loop.ProcessDirect(context.Background(), "hello", "cli:direct", bus.ChannelCLI, "direct")
	if got != "hello back" {
		t.Errorf("response = %q", got)
	}

	ses := loop.sessions.GetOrCreate("cli:direct")
	if ses.Len() != 2 {
		t.Fatalf("session has %d messages, want user + assistant", ses.Len())
	}
	history := ses.GetHistory(0).Messages
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", history[0].Role, history[1].Role)
	}
}

func TestProcessDirect_SystemPromptIncluded(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("ok")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	loop.ProcessDirect(context.Background(), "ping", "cli:direct", bus.ChannelCLI, "direct")

	first := provider.calls[0].Messages[0]
	if first.Role != "system" {
		t.Fatalf("first message role = %s", first.Role)
	}
	prompt, _ := first.Content.(string)
	if !strings.Contains(prompt, "amberseal") {
		t.Errorf("system prompt missing identity:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Channel: cli") || !strings.Contains(prompt, "Chat ID: direct") {
		t.Errorf("system prompt missing session section:\n%s", prompt)
	}
}

func TestHandleExternalChannel_EmptyResponseFallback(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	got := loop.ProcessDirect(context.Background(), "hi", "", bus.ChannelTelegram, "42")
	if got != "I've completed processing but have no response to give." {
		t.Errorf("response = %q", got)
	}
}

func TestSlashNew_ClearsSession(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("first reply")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	loop.ProcessDirect(context.Background(), "remember this", "", bus.ChannelTelegram, "42")

	got := loop.ProcessDirect(context.Background(), "/new", "", bus.ChannelTelegram, "42")
	if !strings.Contains(got, "New session started") {
		t.Errorf("response = %q", got)
	}

	ses := loop.sessions.GetOrCreate("telegram:42")
	if ses.Len() != 0 {
		t.Errorf("session has %d messages after /new, want 0", ses.Len())
	}
}

func TestSlashHelp(t *testing.T) {
	loop, _ := newTestLoop(t, &scriptedProvider{}, tools.NewRegistryBuilder().Build())

	got := loop.ProcessDirect(context.Background(), "/help", "", bus.ChannelTelegram, "42")
	if !strings.Contains(got, "/new") || !strings.Contains(got, "/help") {
		t.Errorf("help text = %q", got)
	}
}

func TestMessageToolSuppressesAutomaticReply(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(schema.ToolCall{ID: "c1", Name: "message", Arguments: map[string]any{"content": "direct answer"}}),
		textResponse("already answered"),
	}}

	b := bus.NewMessageBus(16)
	registry := tools.NewRegistryBuilder().WithTool(tools.NewMessageTool(b)).Build()

	ws := t.TempDir()
	sessions, err := session.NewManager(ws)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := NewMemoryStore(ws)
	if err != nil {
		t.Fatal(err)
	}
	loop := NewAgentLoop(b, provider, testSettings(), sessions, mem, registry, NewContextBuilder(ws, "", mem))

	msg := bus.InboundMessage{Channel: bus.ChannelTelegram, SenderID: "u", ChatID: "42", Content: "question"}
	resp, suppress := loop.routeMessage(context.Background(), msg, "")
	if !suppress {
		t.Error("automatic reply not suppressed")
	}
	// The final text is still returned for direct callers.
	if resp == nil || resp.Content != "already answered" {
		t.Errorf("resp = %+v, want final text", resp)
	}

	// The message tool's outbound must still be on the bus.
	select {
	case out := <-b.Outbound:
		if out.Content != "direct answer" {
			t.Errorf("outbound = %+v", out)
		}
	default:
		t.Fatal("no outbound from message tool")
	}
}

func TestMessageToolTurn_ProcessDirectReturnsFinal(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{
		toolResponse(schema.ToolCall{ID: "c1", Name: "message", Arguments: map[string]any{"content": "direct answer"}}),
		textResponse("done"),
	}}

	b := bus.NewMessageBus(16)
	registry := tools.NewRegistryBuilder().WithTool(tools.NewMessageTool(b)).Build()

	ws := t.TempDir()
	sessions, err := session.NewManager(ws)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := NewMemoryStore(ws)
	if err != nil {
		t.Fatal(err)
	}
	loop := NewAgentLoop(b, provider, testSettings(), sessions, mem, registry, NewContextBuilder(ws, "", mem))

	got := loop.ProcessDirect(context.Background(), "question", "telegram:42", bus.ChannelTelegram, "42")
	if got != "done" {
		t.Errorf("ProcessDirect = %q, want the final text even after the message tool fired", got)
	}

	// The session keeps the whole turn: the user message, the assistant
	// tool-call entry, the tool acknowledgment, and the final answer.
	history := loop.sessions.GetOrCreate("telegram:42").GetHistory(0).Messages
	roles := make([]string, len(history))
	for i, m := range history {
		roles[i] = m.Role
	}
	want := []string{"user", "assistant", "tool", "assistant"}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
	if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Name != "message" {
		t.Errorf("assistant entry = %+v, want message tool call", history[1])
	}
	if history[2].Content != "Message displayed to user" {
		t.Errorf("tool result = %v", history[2].Content)
	}
}

func TestSystemChannel_RoutesToOriginChat(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("the task finished")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	msg := bus.InboundMessage{
		Channel:  bus.ChannelSystem,
		SenderID: "subagent",
		ChatID:   "telegram:42",
		Content:  "[Subagent 'x' completed successfully] result",
	}
	resp, _ := loop.routeMessage(context.Background(), msg, "")
	if resp == nil {
		t.Fatal("no outbound for system message")
	}
	if resp.Channel != bus.ChannelTelegram || resp.ChatID != "42" {
		t.Errorf("routed to %s/%s, want telegram/42", resp.Channel, resp.ChatID)
	}
	if resp.Content != "the task finished" {
		t.Errorf("content = %q", resp.Content)
	}

	ses := loop.sessions.GetOrCreate("telegram:42")
	history := ses.GetHistory(0).Messages
	if len(history) != 2 {
		t.Fatalf("session has %d messages", len(history))
	}
	user, _ := history[0].Content.(string)
	if !strings.HasPrefix(user, "[System: subagent]") {
		t.Errorf("user entry = %q", user)
	}
}

func TestSystemChannel_FallbackContent(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	msg := bus.InboundMessage{Channel: bus.ChannelSystem, SenderID: "subagent", ChatID: "telegram:42", Content: "x"}
	resp, _ := loop.routeMessage(context.Background(), msg, "")
	if resp == nil || resp.Content != "Background task completed." {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCronChannel_SuppressesBusPublication(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("reminder handled")}}
	loop, _ := newTestLoop(t, provider, tools.NewRegistryBuilder().Build())

	msg := bus.InboundMessage{Channel: bus.ChannelCron, SenderID: "cron", ChatID: "job-1", Content: "remind"}
	resp, suppress := loop.routeMessage(context.Background(), msg, "")
	if !suppress {
		t.Error("cron message must not be published on the bus")
	}
	// The text still reaches the scheduler so it can decide on delivery.
	if resp == nil || resp.Content != "reminder handled" {
		t.Errorf("resp = %+v", resp)
	}
}
