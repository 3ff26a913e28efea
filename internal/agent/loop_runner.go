package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/shared/llmutils"
	"github.com/amberseal/amberseal/internal/tools"
)

// LoopRunner executes the LLM ↔ tool iteration loop.
// It is shared by the main agent loop and subagents.
type LoopRunner struct {
	provider schema.LLMProvider
	settings schema.AgentSettings
}

func newLoopRunner(provider schema.LLMProvider, settings schema.AgentSettings) LoopRunner {
	return LoopRunner{provider: provider, settings: settings}
}

// run is the canonical LLM ↔ tool loop body.
// Each iteration makes one LLM call; tool calls are dispatched sequentially
// in response order, and each result is appended before the next LLM call.
//
// turn holds every message appended during the run (assistant tool-call
// entries and tool results) so callers can persist the full transcript.
func (r *LoopRunner) run(ctx context.Context, conversation schema.Messages, tls *tools.ToolList, onProgress func(string)) (finalContent string, turn []schema.Message, toolsUsed []string) {
	start := len(conversation.Messages)

	for i := 0; i < r.settings.MaxIter; i++ {
		resp, err := r.provider.Chat(ctx,
			conversation,
			tls.Definitions(),
			schema.NewChatOptions(r.settings.Model, r.settings.MaxTokens, r.settings.Temperature),
		)

		// Provider failures are terminal for the turn: transport and backend
		// errors arrive in-band as FinishReason "error" with the diagnostic
		// in Content, which becomes the final answer so the user sees it.
		if err != nil || resp.FinishReason == "error" {
			detail := ""
			if resp.Content != nil {
				detail = *resp.Content
			}
			slog.Error("LLM error", "err", err, "detail", detail)
			if err == nil && detail != "" {
				return detail, conversation.Messages[start:], toolsUsed
			}
			return "Sorry, I encountered an error calling the LLM.", conversation.Messages[start:], toolsUsed
		}

		if len(resp.ToolCalls) == 0 {
			// Terminal response.
			content := ""
			if resp.Content != nil {
				content = *resp.Content
			}
			return llmutils.StripThink(content), conversation.Messages[start:], toolsUsed
		}

		// Progress: emit partial assistant text before dispatching.
		if onProgress != nil && resp.Content != nil {
			if clean := llmutils.StripThink(*resp.Content); clean != "" {
				onProgress(clean)
			}
		}

		// Append assistant turn with tool calls.
		conversation.AddAssistant(resp.Content, resp.ToolCalls, resp.ReasoningContent)

		// Execute each tool in order; every call gets a result message, even
		// on failure, so the next LLM call sees a complete transcript.
		// The progress hint fires once per call, before that call runs.
		for _, tc := range resp.ToolCalls {
			if onProgress != nil {
				onProgress(llmutils.ToolHint([]schema.ToolCall{tc}))
			}

			toolsUsed = append(toolsUsed, tc.Name)
			argsJSON, _ := json.Marshal(tc.Arguments)

			slog.Info("Tool call", "name", tc.Name, "args", llmutils.Truncate(string(argsJSON), 200))

			result := r.executeTool(ctx, tls, tc)
			conversation.AddToolResult(tc.ID, tc.Name, result)
		}
	}

	return "I've reached the maximum number of tool iterations without a final answer.", conversation.Messages[start:], toolsUsed
}

// executeTool runs one tool call, converting unknown tools, execution errors,
// and panics into error result strings the model can recover from.
func (r *LoopRunner) executeTool(ctx context.Context, tls *tools.ToolList, tc schema.ToolCall) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool panicked", "name", tc.Name, "panic", rec)
			result = fmt.Sprintf("Error: Tool '%s' panicked: %v", tc.Name, rec)
		}
	}()

	t := tls.Get(tc.Name)
	if t == nil {
		return fmt.Sprintf("Error: Tool '%s' not found", tc.Name)
	}
	out, err := t.Execute(ctx, tc.Arguments)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out
}
