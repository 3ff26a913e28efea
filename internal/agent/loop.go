package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/session"
	"github.com/amberseal/amberseal/internal/shared/llmutils"
	"github.com/amberseal/amberseal/internal/tools"
)

// AgentLoop is the core processing engine.
//
// It reads InboundMessages from the bus, routes each message to the
// appropriate channel-kind handler, and publishes OutboundMessages.
// Each inbound message is handled in its own goroutine; turns on the same
// session are serialised by the session's turn mutex.
type AgentLoop struct {
	bus      *bus.MessageBus
	settings schema.AgentSettings

	promptBuilder *ContextBuilder
	sessions      *session.Manager
	memory        schema.MemoryStore
	tools         *tools.ToolList

	runner LoopRunner

	consolidating sync.Map // session key → in-flight consolidation guard
}

var _ schema.AgentLooper = (*AgentLoop)(nil)

// NewAgentLoop creates an AgentLoop over the given provider, session store,
// memory store, and tool registry.
func NewAgentLoop(
	b *bus.MessageBus,
	provider schema.LLMProvider,
	settings schema.AgentSettings,
	sessions *session.Manager,
	memory schema.MemoryStore,
	registry *tools.Registry,
	promptBuilder *ContextBuilder,
) *AgentLoop {
	return &AgentLoop{
		bus:           b,
		settings:      settings,
		promptBuilder: promptBuilder,
		sessions:      sessions,
		memory:        memory,
		tools:         registry.AllTools(),
		runner:        newLoopRunner(provider, settings),
	}
}

// Run reads from the inbound bus and processes each message in a goroutine.
// Blocks until ctx is cancelled.
func (loop *AgentLoop) Run(ctx context.Context) error {
	slog.Info("Agent loop started")

	for {
		select {
		case msg := <-loop.bus.Inbound:
			go loop.handleMessage(ctx, msg)
		case <-ctx.Done():
			slog.Info("Agent loop stopping")
			return ctx.Err()
		}
	}
}

// ProcessDirect handles a message outside the bus (CLI, cron, heartbeat).
// Returns the final text response.
func (loop *AgentLoop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) string {
	msg := bus.InboundMessage{
		Channel:   channel,
		SenderID:  "user",
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
	res, _ := loop.routeMessage(ctx, msg, sessionKey)
	if res == nil {
		return ""
	}
	return res.Content
}

func (loop *AgentLoop) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	resp, suppress := loop.routeMessage(ctx, msg, "")

	switch {
	case resp != nil && !suppress:
		loop.bus.Outbound <- *resp
	case msg.Channel == bus.ChannelCLI:
		// Signal CLI that we're done even when the message tool was used.
		loop.bus.Outbound <- bus.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			Metadata: msg.Metadata,
		}
	}
}

// routeMessage dispatches msg to the appropriate channel-kind handler.
// It returns the turn's response plus a flag telling handleMessage not to
// publish it on the bus (the message tool already delivered it, or the
// channel kind never publishes). Callers such as ProcessDirect still get
// the final text either way.
// sessionKeyOverride is non-empty only when called from ProcessDirect.
func (loop *AgentLoop) routeMessage(ctx context.Context, msg bus.InboundMessage, sessionKeyOverride string) (*bus.OutboundMessage, bool) {
	switch msg.Channel {
	case bus.ChannelSystem:
		return loop.handleSystemChannel(ctx, msg), false
	case bus.ChannelCron, bus.ChannelHeartbeat:
		// Cron and heartbeat normally run through ProcessDirect; delivery is
		// the scheduler's decision, so nothing goes out on the bus.
		resp, _ := loop.handleExternalChannel(ctx, msg, sessionKeyOverride)
		return resp, true
	default:
		return loop.handleExternalChannel(ctx, msg, sessionKeyOverride)
	}
}

// handleSystemChannel processes system-channel messages injected by subagents.
// It parses the original channel/chat from msg.ChatID, runs one LLM
// summarisation turn, and routes the reply to the original chat.
func (loop *AgentLoop) handleSystemChannel(ctx context.Context, msg bus.InboundMessage) *bus.OutboundMessage {
	channel, chatID, _ := strings.Cut(msg.ChatID, ":")
	if chatID == "" {
		channel = bus.ChannelCLI
		chatID = msg.ChatID
	}

	slog.Info("Processing system message", "sender", msg.SenderID)

	key := channel + ":" + chatID
	sess := loop.sessions.GetOrCreate(key)
	sess.LockTurn()
	defer sess.UnlockTurn()

	ctx = tools.WithTurn(ctx, tools.TurnContext{Channel: channel, ChatID: chatID})

	conversation := loop.promptBuilder.BuildMessages(
		sess.GetHistory(loop.settings.MemoryWindow),
		msg.Content,
		nil,
		channel,
		chatID,
	)

	final, turn, toolsUsed := loop.runner.run(ctx, conversation, loop.tools, nil)
	final = llmutils.StringOrDefault(final, "Background task completed.")

	sess.AddUser(fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content))
	sess.AddTurn(turn)
	sess.AddAssistant(final, toolsUsed)
	sess.TrimToWindow(loop.settings.MemoryWindow)
	loop.sessions.Save(sess)

	return &bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: final}
}

// handleExternalChannel processes messages from chat platforms and the CLI.
// It runs slash commands, the full LLM loop, saves the session, and returns
// the turn's response. The bool is true when the message tool already sent
// the reply, so the caller must not publish the response again.
func (loop *AgentLoop) handleExternalChannel(ctx context.Context, msg bus.InboundMessage, sessionKeyOverride string) (*bus.OutboundMessage, bool) {
	slog.Info(
		"Processing message",
		"sender", msg.SenderID,
		"channel", msg.Channel,
		"content", msg.ContentPreview(),
	)

	key := llmutils.StringOrDefault(sessionKeyOverride, msg.SessionKey())
	ses := loop.sessions.GetOrCreate(key)
	ses.LockTurn()
	defer ses.UnlockTurn()

	if resp := loop.handleSlashCommand(msg, ses, key); resp != nil {
		return resp, false
	}

	loop.scheduleConsolidation(key, ses, false)

	ctx, msgSentChan := loop.withTurnContext(ctx, msg)

	conversation := loop.promptBuilder.BuildMessages(
		ses.GetHistory(loop.settings.MemoryWindow),
		msg.Content,
		msg.Media,
		msg.Channel,
		msg.ChatID,
	)

	final, turn, toolsUsed := loop.runner.run(ctx, conversation, loop.tools, loop.makeProgressCallback(msg))
	if final == "" {
		final = "I've completed processing but have no response to give."
	}

	slog.Info("Response", "channel", msg.Channel, "sender", msg.SenderID, "length", len(final))

	ses.AddUser(msg.Content)
	ses.AddTurn(turn)
	ses.AddAssistant(final, toolsUsed)
	ses.TrimToWindow(loop.settings.MemoryWindow)
	loop.sessions.Save(ses)

	resp := &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  final,
		Metadata: msg.Metadata,
	}

	// If the message tool sent something, the automatic reply must not be
	// published a second time; the response still carries the final text.
	select {
	case <-msgSentChan:
		return resp, true
	default:
	}

	return resp, false
}

// handleSlashCommand checks msg.Content for a known slash command and handles
// it. Returns non-nil if the command was handled (caller should return early).
func (loop *AgentLoop) handleSlashCommand(
	msg bus.InboundMessage,
	ses *session.Session,
	key string,
) *bus.OutboundMessage {
	cmd := strings.TrimSpace(strings.ToLower(msg.Content))
	switch cmd {
	case "/new":
		return loop.handleCmdNew(msg, ses, key)
	case "/help":
		return loop.handleCmdHelp(msg)
	}
	return nil
}

// handleCmdNew clears the current session and triggers background memory
// consolidation of the old messages, then replies with a confirmation.
func (loop *AgentLoop) handleCmdNew(msg bus.InboundMessage, ses *session.Session, key string) *bus.OutboundMessage {
	ses.Lock()
	archived := ses.CopyMessages()
	ses.Unlock()

	ses.Clear()
	loop.sessions.Save(ses)
	loop.sessions.Invalidate(key)

	tmp := session.NewArchivedSession(key, archived)
	loop.scheduleConsolidation(key+":archive", tmp, true)

	return &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  "New session started. Memory consolidation in progress.",
		Metadata: msg.Metadata,
	}
}

// handleCmdHelp returns the help text listing available slash commands.
func (loop *AgentLoop) handleCmdHelp(msg bus.InboundMessage) *bus.OutboundMessage {
	return &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  "amberseal commands:\n/new — Start a new conversation\n/help — Show available commands",
		Metadata: msg.Metadata,
	}
}

// scheduleConsolidation starts background memory consolidation for a session
// unless one is already in flight for the same key.
func (loop *AgentLoop) scheduleConsolidation(key string, ses schema.ConsolidatableSession, archiveAll bool) {
	if _, busy := loop.consolidating.LoadOrStore(key, struct{}{}); busy {
		return
	}
	go func() {
		defer loop.consolidating.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := loop.memory.Consolidate(ctx, ses, loop.sessions, loop.runner.provider,
			loop.settings.Model, archiveAll, loop.settings.MemoryWindow)
		if err != nil {
			slog.Warn("memory consolidation failed", "key", key, "err", err)
		}
	}()
}

// withTurnContext decorates ctx with per-turn routing information and returns
// a channel that is closed when the message tool has sent a reply.
func (loop *AgentLoop) withTurnContext(ctx context.Context, msg bus.InboundMessage) (context.Context, chan struct{}) {
	msgID := ""
	if v, ok := msg.Metadata["message_id"].(string); ok {
		msgID = v
	}
	msgSent := make(chan struct{})
	ctx = tools.WithTurn(ctx, tools.TurnContext{
		Channel:     msg.Channel,
		ChatID:      msg.ChatID,
		MsgID:       msgID,
		MessageSent: msgSent,
	})
	return ctx, msgSent
}

// makeProgressCallback returns a function that pushes intermediate output to
// the outbound bus so clients can display streaming progress.
func (loop *AgentLoop) makeProgressCallback(msg bus.InboundMessage) func(string) {
	return func(content string) {
		meta := map[string]any{"_progress": true}
		for k, v := range msg.Metadata {
			meta[k] = v
		}
		loop.bus.Outbound <- bus.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			Content:  content,
			Metadata: meta,
		}
	}
}
