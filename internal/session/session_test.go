package session

import (
	"testing"

	"github.com/amberseal/amberseal/internal/schema"
)

func TestSession_AddAndHistory(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}

	s.AddUser("hello")
	s.AddAssistant("hi there", []string{"read_file"})

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	hist := s.GetHistory(0)
	if hist.Messages[0].Role != "user" || hist.Messages[1].Role != "assistant" {
		t.Errorf("unexpected roles: %s, %s", hist.Messages[0].Role, hist.Messages[1].Role)
	}
	if got := hist.Messages[1].ToolsUsed; len(got) != 1 || got[0] != "read_file" {
		t.Errorf("toolsUsed = %v", got)
	}
}

func TestSession_AddTurn(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}

	s.AddUser("search for it")
	s.AddTurn([]schema.Message{
		{Role: "assistant", ToolCalls: []schema.ToolCall{{ID: "c1", Name: "web_search"}}},
		{Role: "tool", Content: "found", ToolCallID: "c1", ToolName: "web_search"},
	})
	s.AddAssistant("here it is", []string{"web_search"})

	hist := s.GetHistory(0).Messages
	if len(hist) != 4 {
		t.Fatalf("len = %d, want 4", len(hist))
	}
	if hist[1].Role != "assistant" || len(hist[1].ToolCalls) != 1 {
		t.Errorf("turn assistant entry = %+v", hist[1])
	}
	if hist[2].Role != "tool" || hist[2].ToolCallID != "c1" {
		t.Errorf("turn tool result = %+v", hist[2])
	}
}

func TestSession_GetHistoryTail(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}
	for i := 0; i < 10; i++ {
		s.AddUser("msg")
	}

	hist := s.GetHistory(3)
	if len(hist.Messages) != 3 {
		t.Errorf("history len = %d, want 3", len(hist.Messages))
	}
}

func TestSession_TrimToWindow(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}
	for i := 0; i < 8; i++ {
		s.AddUser("msg")
	}

	s.TrimToWindow(5)
	if got := s.Len(); got != 5 {
		t.Errorf("len after trim = %d, want 5", got)
	}

	// Trimming below the current size is a no-op.
	s.TrimToWindow(10)
	if got := s.Len(); got != 5 {
		t.Errorf("len after no-op trim = %d, want 5", got)
	}

	// Zero window disables trimming.
	s.TrimToWindow(0)
	if got := s.Len(); got != 5 {
		t.Errorf("len after zero-window trim = %d, want 5", got)
	}
}

func TestSession_TrimToWindowPinsSystemMessage(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}
	s.Messages.AddSystem("you are an assistant")
	for i := 0; i < 6; i++ {
		s.AddUser("msg")
	}

	s.TrimToWindow(4)

	msgs := s.GetHistory(0).Messages
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5 (pinned system + 4 window)", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message role = %q, want pinned system", msgs[0].Role)
	}
}

func TestSession_Compact(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}
	for i := 0; i < 10; i++ {
		s.AddUser("msg")
	}
	s.SetLastConsolidated(8)

	s.Compact(4)
	if got := s.Len(); got != 4 {
		t.Errorf("len after compact = %d, want 4", got)
	}
	if got := s.LastConsolidated(); got != 0 {
		t.Errorf("lastConsolidated after compact = %d, want 0", got)
	}
}

func TestSession_Clear(t *testing.T) {
	s := &Session{Key: "cli:direct", Messages: schema.NewMessages()}
	s.AddUser("msg")
	s.SetLastConsolidated(1)

	s.Clear()
	if s.Len() != 0 {
		t.Error("expected empty session after Clear")
	}
	if s.LastConsolidated() != 0 {
		t.Error("expected reset consolidation pointer after Clear")
	}
}
