package llmutils

import (
	"testing"

	"github.com/amberseal/amberseal/internal/schema"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("Truncate long = %q", got)
	}
}

func TestStripThink(t *testing.T) {
	in := "<think>step 1\nstep 2</think>the answer"
	if got := StripThink(in); got != "the answer" {
		t.Errorf("StripThink = %q", got)
	}
	if got := StripThink("no thinking here"); got != "no thinking here" {
		t.Errorf("StripThink passthrough = %q", got)
	}
}

func TestStringOrDefault(t *testing.T) {
	if got := StringOrDefault("", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
	if got := StringOrDefault("value", "fallback"); got != "value" {
		t.Errorf("got %q", got)
	}
}

func TestToolHint(t *testing.T) {
	hint := ToolHint([]schema.ToolCall{
		{Name: "web_search", Arguments: map[string]any{"query": "weather in London"}},
		{Name: "exec", Arguments: map[string]any{}},
	})
	if hint != `web_search("weather in London"), exec` {
		t.Errorf("hint = %q", hint)
	}
}
