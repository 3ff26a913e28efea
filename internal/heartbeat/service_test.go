package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestHasActiveTasks(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty file", "", false},
		{"only headings", "# HEARTBEAT\n## Tasks\n", false},
		{"only comments", "<!-- add tasks below -->\n", false},
		{"unchecked boxes", "- [ ] later\n- [ ] someday\n", false},
		{"checked box counts", "- [x] done today\n", true},
		{"plain text counts", "# HEARTBEAT\ncheck the inbox\n", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasActiveTasks(tc.content); got != tc.want {
				t.Errorf("hasActiveTasks(%q) = %v, want %v", tc.content, got, tc.want)
			}
		})
	}
}

func TestService_FiresOnActiveTasks(t *testing.T) {
	ws := t.TempDir()
	content := "# HEARTBEAT\n- [x] water the plants\n"
	if err := os.WriteFile(filepath.Join(ws, "HEARTBEAT.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	svc := NewService(ws, func(_ context.Context, got string) error {
		if got != content {
			t.Errorf("callback content = %q", got)
		}
		calls.Add(1)
		return nil
	}, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = svc.Start(ctx)

	if calls.Load() == 0 {
		t.Errorf("heartbeat never fired")
	}
}

func TestService_SkipsWhenNoFile(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(t.TempDir(), func(context.Context, string) error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = svc.Start(ctx)

	if calls.Load() != 0 {
		t.Errorf("heartbeat fired without HEARTBEAT.md")
	}
}

func TestNewService_DefaultInterval(t *testing.T) {
	svc := NewService("/tmp", nil, 0)
	if svc.interval != 30*time.Minute {
		t.Errorf("interval = %v", svc.interval)
	}
}
