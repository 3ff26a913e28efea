package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amberseal/amberseal/internal/schema"
)

// CronTool manages scheduled reminders and recurring tasks.
// The delivery channel/chatID defaults to the current turn's origin,
// read from the TurnContext.
type CronTool struct {
	service schema.CronService
}

// NewCronTool creates a CronTool backed by the given service.
func NewCronTool(service schema.CronService) *CronTool {
	return &CronTool{service: service}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: 'add' (schedule a job), " +
		"'list' (show scheduled jobs), 'remove' (delete a job by id). " +
		"For 'add', provide exactly one of: every_seconds (recurring interval), " +
		"cron_expr (cron schedule, optionally with tz), or at (one-shot ISO timestamp)."
}

func (t *CronTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["add", "list", "remove"],
				"description": "The action to perform"
			},
			"message": {
				"type": "string",
				"description": "The reminder message (for add)"
			},
			"every_seconds": {
				"type": "integer",
				"description": "Run every N seconds (for add)"
			},
			"cron_expr": {
				"type": "string",
				"description": "Cron expression, e.g. '0 9 * * *' (for add)"
			},
			"tz": {
				"type": "string",
				"description": "IANA timezone for cron_expr, e.g. 'Europe/Berlin'"
			},
			"at": {
				"type": "string",
				"description": "One-shot time, RFC3339 or 'YYYY-MM-DDTHH:MM:SS' local (for add)"
			},
			"job_id": {
				"type": "string",
				"description": "Job id (for remove)"
			}
		},
		"required": ["action"]
	}`)
}

func (t *CronTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	action, _ := params["action"].(string)
	switch action {
	case "add":
		return t.addJob(ctx, params)
	case "list":
		return t.listJobs()
	case "remove":
		return t.removeJob(params)
	default:
		return fmt.Sprintf("Error: unknown action %q (use add, list, remove)", action), nil
	}
}

func (t *CronTool) addJob(ctx context.Context, params map[string]any) (string, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return "Error: message is required for add", nil
	}

	var (
		kind        string
		everyMs     int64
		cronExpr    string
		tz          string
		atMs        int64
		deleteAfter bool
	)

	if secs, ok := numericToInt64(params["every_seconds"]); ok && secs > 0 {
		kind = "every"
		everyMs = secs * 1000
	} else if expr, ok := params["cron_expr"].(string); ok && expr != "" {
		kind = "cron"
		cronExpr = expr
		tz, _ = params["tz"].(string)
	} else if at, ok := params["at"].(string); ok && at != "" {
		ts, err := parseAtTime(at)
		if err != nil {
			return fmt.Sprintf("Error: invalid 'at' time %q: %v", at, err), nil
		}
		kind = "at"
		atMs = ts.UnixMilli()
		deleteAfter = true
	} else {
		return "Error: provide one of every_seconds, cron_expr, or at", nil
	}

	name := message
	if len(name) > 30 {
		name = name[:30]
	}

	tc := TurnCtx(ctx)
	id, err := t.service.AddJob(name, message, kind, everyMs, cronExpr, tz, atMs, true, tc.Channel, tc.ChatID, deleteAfter)
	if err != nil {
		return "Error scheduling job: " + err.Error(), nil
	}
	return fmt.Sprintf("Scheduled job %s (%s)", id, kind), nil
}

func (t *CronTool) listJobs() (string, error) {
	jobs, err := t.service.ListJobs()
	if err != nil {
		return "Error listing jobs: " + err.Error(), nil
	}
	if len(jobs) == 0 {
		return "No scheduled jobs", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d scheduled job(s):\n", len(jobs)))
	for _, j := range jobs {
		sb.WriteString(fmt.Sprintf("- %s [%s] %s\n", j.ID, j.Kind, j.Name))
	}
	return sb.String(), nil
}

func (t *CronTool) removeJob(params map[string]any) (string, error) {
	id, _ := params["job_id"].(string)
	if id == "" {
		return "Error: job_id is required for remove", nil
	}
	removed, err := t.service.RemoveJob(id)
	if err != nil {
		return "Error removing job: " + err.Error(), nil
	}
	if !removed {
		return fmt.Sprintf("Job %s not found", id), nil
	}
	return fmt.Sprintf("Removed job %s", id), nil
}

// parseAtTime accepts RFC3339 or a naive local timestamp.
func parseAtTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// numericToInt64 converts JSON-decoded numbers (float64, int, etc.) to int64.
func numericToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
