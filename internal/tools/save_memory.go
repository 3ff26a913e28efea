package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/amberseal/amberseal/internal/schema"
)

// SaveMemoryTool persists durable facts and history entries to the
// long-term memory store.
type SaveMemoryTool struct {
	store schema.MemoryStore
}

// NewSaveMemoryTool creates a SaveMemoryTool backed by the given store.
func NewSaveMemoryTool(store schema.MemoryStore) *SaveMemoryTool {
	return &SaveMemoryTool{store: store}
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Save important facts to long-term memory and append a summary of " +
		"recent events to the history log."
}

func (t *SaveMemoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"history_entry": {
				"type": "string",
				"description": "A concise summary of recent events to append to the history log"
			},
			"memory_update": {
				"type": "string",
				"description": "The complete new content of long-term memory (replaces the old content)"
			}
		},
		"required": ["history_entry", "memory_update"]
	}`)
}

// Save applies the memory update, skipping the long-term write when the
// content is unchanged from current.
func (t *SaveMemoryTool) Save(_ context.Context, params map[string]any, current string) (string, error) {
	if entry, ok := params["history_entry"].(string); ok && entry != "" {
		if err := t.store.AppendHistory(entry); err != nil {
			slog.Warn("failed to append history", "error", err)
		}
	}
	if update, ok := params["memory_update"].(string); ok && update != "" && update != current {
		if err := t.store.WriteLongTerm(update); err != nil {
			slog.Warn("failed to write long-term memory", "error", err)
		}
	}
	return "memory saved", nil
}

func (t *SaveMemoryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return t.Save(ctx, params, t.store.ReadLongTerm())
}
