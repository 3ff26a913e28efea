package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/shared/llmutils"
	"github.com/amberseal/amberseal/internal/tools"
)

// SubagentManager runs background tasks (subagents) in goroutines.
// Each subagent carries a restricted tool set (no message/spawn/cron tools)
// and starts fresh with no session history. Results are announced back to the
// main agent through the system channel.
type SubagentManager struct {
	runner    LoopRunner
	tools     *tools.ToolList
	workspace string
	bus       *bus.MessageBus

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

var _ schema.Spawner = (*SubagentManager)(nil)

// NewSubagentManager creates a SubagentManager. registry must contain only
// the tools subagents are allowed to use.
func NewSubagentManager(
	b *bus.MessageBus,
	provider schema.LLMProvider,
	settings schema.AgentSettings,
	registry *tools.Registry,
	workspace string,
) *SubagentManager {
	return &SubagentManager{
		runner:    newLoopRunner(provider, settings),
		tools:     registry.AllTools(),
		workspace: workspace,
		bus:       b,
		running:   make(map[string]context.CancelFunc),
	}
}

// Spawn starts a background subagent goroutine and returns immediately.
func (sm *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID string) (string, error) {
	taskID := uuid.NewString()[:8]
	label = llmutils.StringOrDefault(label, task)
	label = llmutils.Truncate(label, 30)

	subctx, cancel := context.WithCancel(context.Background()) // detached from caller

	sm.mu.Lock()
	sm.running[taskID] = cancel
	sm.mu.Unlock()

	go func() {
		defer func() {
			sm.mu.Lock()
			delete(sm.running, taskID)
			sm.mu.Unlock()
			cancel()
		}()
		sm.runSubagent(subctx, taskID, task, label, originChannel, originChatID)
	}()

	slog.Info("Spawned subagent", "id", taskID, "label", label)
	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, taskID), nil
}

// RunningCount reports the number of subagents currently executing.
func (sm *SubagentManager) RunningCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.running)
}

func (sm *SubagentManager) runSubagent(
	ctx context.Context,
	taskID, task, label, originChannel, originChatID string,
) {
	slog.Info("Subagent starting", "id", taskID, "label", label)

	conversation := schema.NewMessages(
		schema.NewSystemMessage(sm.buildSystemPrompt()),
		schema.NewUserMessage(task),
	)

	result, _, _ := sm.runner.run(ctx, conversation, sm.tools, nil)
	result = llmutils.StringOrDefault(result, "Task completed but no final response was generated.")

	slog.Info("Subagent completed", "id", taskID)

	sm.announceResult(label, task, result, "completed successfully", originChannel, originChatID)
}

// announceResult injects a system-channel message so the main loop can
// summarise the result for the user on the originating chat.
func (sm *SubagentManager) announceResult(
	label, task, result, status, originChannel, originChatID string,
) {
	content := fmt.Sprintf(`[Subagent '%s' %s]

Task: %s

Result:
%s

Summarize this naturally for the user. Keep it brief (1-2 sentences). Do not mention technical details like "subagent" or task IDs.`,
		label, status, task, result)

	sm.bus.Inbound <- bus.InboundMessage{
		Channel:   bus.ChannelSystem,
		SenderID:  "subagent",
		ChatID:    originChannel + ":" + originChatID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func (sm *SubagentManager) buildSystemPrompt() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	if tz == "" {
		tz = "UTC"
	}

	ws := expandHome(sm.workspace)

	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "macOS"
	}

	return strings.Join([]string{
		"# Subagent",
		"",
		"## Current Time",
		now + " (" + tz + ")",
		"",
		"You are a subagent spawned by the main agent to complete a specific task.",
		"",
		"## Rules",
		"1. Stay focused - complete only the assigned task, nothing else",
		"2. Your final response will be reported back to the main agent",
		"3. Do not initiate conversations or take on side tasks",
		"4. Be concise but informative in your findings",
		"",
		"## What You Can Do",
		"- Read and write files in the workspace",
		"- Execute shell commands",
		"- Search the web and fetch web pages",
		"- Complete the task thoroughly",
		"",
		"## What You Cannot Do",
		"- Send messages directly to users (no message tool available)",
		"- Spawn other subagents",
		"- Access the main agent's conversation history",
		"",
		"## Workspace",
		"Your workspace is at: " + ws,
		"Skills are available at: " + ws + "/skills/ (read SKILL.md files as needed)",
		"OS: " + goos + " " + runtime.GOARCH,
		"",
		"When you have completed the task, provide a clear summary of your findings or actions.",
	}, "\n")
}
