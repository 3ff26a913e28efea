package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/tools"
)

func TestSpawn_AnnouncesResultOnSystemChannel(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("found 3 flights under 200 EUR")}}
	b := bus.NewMessageBus(16)
	sm := NewSubagentManager(b, provider, testSettings(), tools.NewRegistryBuilder().Build(), t.TempDir())

	ack, err := sm.Spawn(context.Background(), "find cheap flights", "flights", bus.ChannelTelegram, "42")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ack, "[flights]") {
		t.Errorf("ack = %q", ack)
	}

	select {
	case msg := <-b.Inbound:
		if msg.Channel != bus.ChannelSystem {
			t.Errorf("channel = %s", msg.Channel)
		}
		if msg.ChatID != "telegram:42" {
			t.Errorf("chat id = %s, want origin routing key", msg.ChatID)
		}
		if !strings.Contains(msg.Content, "found 3 flights") {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no system-channel announcement")
	}
}

func TestSpawn_LabelDefaultsToTask(t *testing.T) {
	provider := &scriptedProvider{responses: []schema.LLMResponse{textResponse("done")}}
	b := bus.NewMessageBus(16)
	sm := NewSubagentManager(b, provider, testSettings(), tools.NewRegistryBuilder().Build(), t.TempDir())

	ack, err := sm.Spawn(context.Background(), "a very long task description that should be truncated for display", "", bus.ChannelCLI, "direct")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ack, "a very long task description t...") {
		t.Errorf("ack = %q", ack)
	}
	<-b.Inbound
}

func TestSubagentSystemPrompt(t *testing.T) {
	b := bus.NewMessageBus(1)
	ws := t.TempDir()
	sm := NewSubagentManager(b, &scriptedProvider{}, testSettings(), tools.NewRegistryBuilder().Build(), ws)

	prompt := sm.buildSystemPrompt()
	if !strings.Contains(prompt, "# Subagent") {
		t.Errorf("prompt = %q", prompt)
	}
	if !strings.Contains(prompt, ws) {
		t.Errorf("workspace missing from prompt")
	}
	if !strings.Contains(prompt, "Spawn other subagents") {
		t.Errorf("restrictions missing from prompt")
	}
}
