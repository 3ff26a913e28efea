package channels

import (
	"testing"

	"github.com/amberseal/amberseal/internal/bus"
)

func TestIsAllowed(t *testing.T) {
	cases := []struct {
		name      string
		allowFrom []string
		senderID  string
		want      bool
	}{
		{"empty allowlist allows all", nil, "12345", true},
		{"plain match", []string{"12345"}, "12345", true},
		{"plain mismatch", []string{"12345"}, "99999", false},
		{"id part of composite", []string{"12345"}, "12345|alice", true},
		{"username part of composite", []string{"alice"}, "12345|alice", true},
		{"composite mismatch", []string{"bob"}, "12345|alice", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := NewBase("test", bus.NewMessageBus(1), tc.allowFrom)
			if got := base.IsAllowed(tc.senderID); got != tc.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tc.senderID, got, tc.want)
			}
		})
	}
}

func TestHandleMessage_PublishesInbound(t *testing.T) {
	b := bus.NewMessageBus(4)
	base := NewBase("telegram", b, nil)

	base.HandleMessage("42|alice", "100", "hello", []string{"/tmp/img.jpg"}, map[string]any{"message_id": 7})

	select {
	case msg := <-b.Inbound:
		if msg.Channel != "telegram" || msg.SenderID != "42|alice" || msg.ChatID != "100" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.Content != "hello" || len(msg.Media) != 1 {
			t.Errorf("content/media = %q %v", msg.Content, msg.Media)
		}
	default:
		t.Fatal("no inbound message published")
	}
}

func TestHandleMessage_DeniedSenderDropped(t *testing.T) {
	b := bus.NewMessageBus(4)
	base := NewBase("telegram", b, []string{"alice"})

	base.HandleMessage("99|mallory", "100", "hi", nil, nil)

	if b.InboundSize() != 0 {
		t.Errorf("denied message reached the bus")
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("short = %v", got)
	}

	content := "line one\nline two\nline three"
	chunks := splitMessage(content, 12)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	// Prefers breaking at newlines.
	if chunks[0] != "line one" {
		t.Errorf("chunks[0] = %q", chunks[0])
	}
	for _, c := range chunks {
		if len(c) > 12 {
			t.Errorf("chunk exceeds max: %q", c)
		}
	}
}

func TestSplitMessage_HardCut(t *testing.T) {
	content := "aaaaaaaaaaaaaaaaaaaa" // no break points
	chunks := splitMessage(content, 8)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0] != "aaaaaaaa" {
		t.Errorf("chunks[0] = %q", chunks[0])
	}
}
