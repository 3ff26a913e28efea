package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/schema"
)

type fakeCronService struct {
	added []struct {
		name, message, kind string
		everyMs, atMs       int64
		cronExpr, tz        string
		channel, to         string
		deleteAfterRun      bool
	}
	jobs    []schema.CronJobSummary
	removed []string
}

func (f *fakeCronService) AddJob(name, message, kind string, everyMs int64, cronExpr, tz string, atMs int64, deliver bool, channel, to string, deleteAfterRun bool) (string, error) {
	f.added = append(f.added, struct {
		name, message, kind string
		everyMs, atMs       int64
		cronExpr, tz        string
		channel, to         string
		deleteAfterRun      bool
	}{name, message, kind, everyMs, atMs, cronExpr, tz, channel, to, deleteAfterRun})
	return "job-1", nil
}

func (f *fakeCronService) ListJobs() ([]schema.CronJobSummary, error) {
	return f.jobs, nil
}

func (f *fakeCronService) RemoveJob(id string) (bool, error) {
	f.removed = append(f.removed, id)
	return id == "job-1", nil
}

func TestCronTool_AddEverySeconds(t *testing.T) {
	svc := &fakeCronService{}
	tool := NewCronTool(svc)

	ctx := WithTurn(context.Background(), TurnContext{Channel: bus.ChannelTelegram, ChatID: "42"})
	out, err := tool.Execute(ctx, map[string]any{
		"action":        "add",
		"message":       "stretch your legs",
		"every_seconds": float64(300),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "job-1") {
		t.Errorf("output = %q", out)
	}

	if len(svc.added) != 1 {
		t.Fatalf("added %d jobs, want 1", len(svc.added))
	}
	a := svc.added[0]
	if a.kind != "every" || a.everyMs != 300000 {
		t.Errorf("kind=%s everyMs=%d", a.kind, a.everyMs)
	}
	if a.channel != bus.ChannelTelegram || a.to != "42" {
		t.Errorf("delivery target = %s/%s", a.channel, a.to)
	}
	if a.deleteAfterRun {
		t.Error("recurring job should not delete after run")
	}
}

func TestCronTool_AddCronExpr(t *testing.T) {
	svc := &fakeCronService{}
	tool := NewCronTool(svc)

	_, err := tool.Execute(context.Background(), map[string]any{
		"action":    "add",
		"message":   "daily standup",
		"cron_expr": "0 9 * * *",
		"tz":        "Europe/Berlin",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	a := svc.added[0]
	if a.kind != "cron" || a.cronExpr != "0 9 * * *" || a.tz != "Europe/Berlin" {
		t.Errorf("added = %+v", a)
	}
}

func TestCronTool_AddOneShot(t *testing.T) {
	svc := &fakeCronService{}
	tool := NewCronTool(svc)

	_, err := tool.Execute(context.Background(), map[string]any{
		"action":  "add",
		"message": "call the dentist",
		"at":      "2026-09-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	a := svc.added[0]
	if a.kind != "at" || a.atMs == 0 {
		t.Errorf("added = %+v", a)
	}
	if !a.deleteAfterRun {
		t.Error("one-shot job should delete after run")
	}
}

func TestCronTool_AddTruncatesName(t *testing.T) {
	svc := &fakeCronService{}
	tool := NewCronTool(svc)

	long := strings.Repeat("a", 50)
	_, err := tool.Execute(context.Background(), map[string]any{
		"action":        "add",
		"message":       long,
		"every_seconds": float64(60),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := svc.added[0].name; len(got) != 30 {
		t.Errorf("name length = %d, want 30", len(got))
	}
}

func TestCronTool_AddRequiresSchedule(t *testing.T) {
	tool := NewCronTool(&fakeCronService{})
	out, err := tool.Execute(context.Background(), map[string]any{
		"action":  "add",
		"message": "no schedule",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "every_seconds, cron_expr, or at") {
		t.Errorf("output = %q", out)
	}
}

func TestCronTool_ListAndRemove(t *testing.T) {
	svc := &fakeCronService{jobs: []schema.CronJobSummary{
		{ID: "job-1", Name: "standup", Kind: "cron"},
	}}
	tool := NewCronTool(svc)

	out, err := tool.Execute(context.Background(), map[string]any{"action": "list"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "job-1") || !strings.Contains(out, "standup") {
		t.Errorf("list output = %q", out)
	}

	out, err = tool.Execute(context.Background(), map[string]any{"action": "remove", "job_id": "job-1"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "Removed job job-1") {
		t.Errorf("remove output = %q", out)
	}

	out, err = tool.Execute(context.Background(), map[string]any{"action": "remove", "job_id": "ghost"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "not found") {
		t.Errorf("remove output = %q", out)
	}
}
