package channels

import (
	"testing"

	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/config"
)

func newTestSlack(cfg config.SlackConfig) *SlackChannel {
	ch := NewSlackChannel(&cfg, bus.NewMessageBus(1))
	ch.botUserID = "UBOT"
	return ch
}

func TestSlackIsAllowed_DM(t *testing.T) {
	cfg := config.SlackConfig{DM: config.SlackDMConfig{Enabled: true, Policy: "open"}}
	s := newTestSlack(cfg)
	if !s.isAllowedSlack("U1", "D1", "im") {
		t.Errorf("open DM policy should allow")
	}

	cfg.DM.Enabled = false
	s = newTestSlack(cfg)
	if s.isAllowedSlack("U1", "D1", "im") {
		t.Errorf("disabled DMs should deny")
	}

	cfg.DM = config.SlackDMConfig{Enabled: true, Policy: "allowlist", AllowFrom: []string{"U1"}}
	s = newTestSlack(cfg)
	if !s.isAllowedSlack("U1", "D1", "im") || s.isAllowedSlack("U2", "D1", "im") {
		t.Errorf("DM allowlist not enforced")
	}
}

func TestSlackIsAllowed_GroupAllowlist(t *testing.T) {
	cfg := config.SlackConfig{GroupPolicy: "allowlist", GroupAllowFrom: []string{"C1"}}
	s := newTestSlack(cfg)
	if !s.isAllowedSlack("U1", "C1", "channel") {
		t.Errorf("allowlisted channel denied")
	}
	if s.isAllowedSlack("U1", "C2", "channel") {
		t.Errorf("non-allowlisted channel allowed")
	}
}

func TestSlackShouldRespond(t *testing.T) {
	s := newTestSlack(config.SlackConfig{GroupPolicy: "open"})
	if !s.shouldRespond("message", "hello", "C1") {
		t.Errorf("open policy should respond")
	}

	s = newTestSlack(config.SlackConfig{GroupPolicy: "mention"})
	if !s.shouldRespond("app_mention", "hello", "C1") {
		t.Errorf("app_mention event should respond")
	}
	if !s.shouldRespond("message", "hey <@UBOT> hi", "C1") {
		t.Errorf("inline mention should respond")
	}
	if s.shouldRespond("message", "no mention here", "C1") {
		t.Errorf("unmentioned group message should be ignored")
	}
}

func TestSlackStripMention(t *testing.T) {
	s := newTestSlack(config.SlackConfig{})
	if got := s.stripMention("<@UBOT> what time is it"); got != "what time is it" {
		t.Errorf("got %q", got)
	}
	if got := s.stripMention("plain text"); got != "plain text" {
		t.Errorf("got %q", got)
	}
}
