package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amberseal/amberseal/internal/schema"
)

func newTestContextBuilder(t *testing.T) (*ContextBuilder, string) {
	t.Helper()
	ws := t.TempDir()
	mem, err := NewMemoryStore(ws)
	if err != nil {
		t.Fatal(err)
	}
	return NewContextBuilder(ws, "", mem), ws
}

func TestBuildSystemPrompt_Identity(t *testing.T) {
	cb, ws := newTestContextBuilder(t)

	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "You are amberseal") {
		t.Errorf("identity missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "## Current Time") || !strings.Contains(prompt, "## Runtime") {
		t.Errorf("time/runtime sections missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, ws) {
		t.Errorf("workspace path missing:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_BootstrapFiles(t *testing.T) {
	cb, ws := newTestContextBuilder(t)

	if err := os.WriteFile(filepath.Join(ws, "SOUL.md"), []byte("Be kind."), 0o644); err != nil {
		t.Fatal(err)
	}
	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "## SOUL.md") || !strings.Contains(prompt, "Be kind.") {
		t.Errorf("bootstrap file not included:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_Memory(t *testing.T) {
	cb, _ := newTestContextBuilder(t)

	if err := cb.memory.WriteLongTerm("- user prefers metric units"); err != nil {
		t.Fatal(err)
	}
	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "# Memory") || !strings.Contains(prompt, "metric units") {
		t.Errorf("memory section missing:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_SkillsSummary(t *testing.T) {
	cb, ws := newTestContextBuilder(t)
	writeSkill(t, ws, "weather", "---\ndescription: check the weather\n---\nbody")

	prompt := cb.BuildSystemPrompt()
	if !strings.Contains(prompt, "# Skills") || !strings.Contains(prompt, "check the weather") {
		t.Errorf("skills summary missing:\n%s", prompt)
	}
}

func TestBuildMessages_Order(t *testing.T) {
	cb, _ := newTestContextBuilder(t)

	history := schema.NewMessages()
	history.AddUser("earlier question")
	history.AddAssistant(strPtr("earlier answer"), nil, nil)

	msgs := cb.BuildMessages(history, "current question", nil, "telegram", "42").Messages
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want system + 2 history + current", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("msgs[0].Role = %s", msgs[0].Role)
	}
	if msgs[3].Role != "user" || msgs[3].Content != "current question" {
		t.Errorf("msgs[3] = %+v", msgs[3])
	}

	prompt, _ := msgs[0].Content.(string)
	if !strings.Contains(prompt, "## Current Session") {
		t.Errorf("session section missing:\n%s", prompt)
	}
}

func TestBuildUserContent_EmbedsImages(t *testing.T) {
	cb, ws := newTestContextBuilder(t)

	img := filepath.Join(ws, "photo.png")
	if err := os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nfake"), 0o644); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(ws, "notes.txt")
	if err := os.WriteFile(txt, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	content := cb.buildUserContent("look at this", []string{img, txt})
	blocks, ok := content.([]map[string]any)
	if !ok {
		t.Fatalf("content type = %T", content)
	}
	// One image block plus the trailing text block; the txt file is skipped.
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0]["type"] != "image_url" {
		t.Errorf("blocks[0] = %v", blocks[0])
	}
	imageURL, _ := blocks[0]["image_url"].(map[string]any)
	if url, _ := imageURL["url"].(string); !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("url = %q", url)
	}
	if blocks[1]["type"] != "text" || blocks[1]["text"] != "look at this" {
		t.Errorf("blocks[1] = %v", blocks[1])
	}
}

func TestBuildUserContent_PlainText(t *testing.T) {
	cb, _ := newTestContextBuilder(t)
	if got := cb.buildUserContent("just text", nil); got != "just text" {
		t.Errorf("got %v", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandHome("~/workspace"); got != filepath.Join(home, "workspace") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome = %q", got)
	}
}
