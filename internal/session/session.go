package session

import (
	"sync"
	"time"

	"github.com/amberseal/amberseal/internal/schema"
)

// Session holds one conversation's messages and metadata.
//
// Two locks with different scopes: mu protects the fields for individual
// reads and writes; turnMu serialises whole agent turns on the same session
// key, so concurrent requests for one conversation queue up while different
// conversations proceed in parallel.
type Session struct {
	Key              string
	Messages         schema.Messages
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Metadata         map[string]any
	lastConsolidated int // number of messages already consolidated to MEMORY.md/HISTORY.md

	mu     sync.Mutex
	turnMu sync.Mutex
}

// newSession constructs a Session with all fields set, including the unexported
// lastConsolidated counter. Used only by the manager when loading from disk.
func newSession(key string, messages schema.Messages, createdAt, updatedAt time.Time, meta map[string]any, lastConsolidated int) *Session {
	return &Session{
		Key:              key,
		Messages:         messages,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		Metadata:         meta,
		lastConsolidated: lastConsolidated,
	}
}

// NewArchivedSession creates a temporary session with pre-populated messages
// and no consolidation history. Used for /new consolidation of the old snapshot.
func NewArchivedSession(key string, messages schema.Messages) *Session {
	return &Session{
		Key:      key,
		Messages: messages,
	}
}

// LockTurn acquires the per-session turn mutex. One full agent turn runs
// between LockTurn and UnlockTurn.
func (s *Session) LockTurn() { s.turnMu.Lock() }

// UnlockTurn releases the per-session turn mutex.
func (s *Session) UnlockTurn() { s.turnMu.Unlock() }

// AddUser appends a user message to the session.
func (s *Session) AddUser(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.AddUser(content)
	s.UpdatedAt = time.Now()
}

// AddTurn appends the intermediate messages of one agent turn: assistant
// entries carrying tool calls and the tool results they produced. The final
// assistant text is appended separately via AddAssistant.
func (s *Session) AddTurn(msgs []schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.Messages = append(s.Messages.Messages, msgs...)
	s.UpdatedAt = time.Now()
}

// AddAssistant appends an assistant message to the session.
func (s *Session) AddAssistant(content string, toolsUsed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := content
	s.Messages.Add(schema.Message{
		Role:      "assistant",
		Content:   &c,
		ToolsUsed: toolsUsed,
	})
	s.UpdatedAt = time.Now()
}

// GetHistory returns the last maxMessages messages for the LLM.
func (s *Session) GetHistory(maxMessages int) schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.Messages.Messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	out := schema.NewMessages()
	out.Messages = append(out.Messages, msgs...)
	return out
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages.Messages)
}

// TrimToWindow evicts the oldest messages until at most window remain.
// A leading system message is pinned: it survives the trim and does not
// count against the window. No-op when window <= 0.
func (s *Session) TrimToWindow(window int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if window <= 0 {
		return
	}

	msgs := s.Messages.Messages
	var pinned []schema.Message
	if len(msgs) > 0 && msgs[0].Role == "system" {
		pinned = msgs[:1]
		msgs = msgs[1:]
	}
	if len(msgs) <= window {
		return
	}

	evicted := len(msgs) - window
	tail := make([]schema.Message, 0, len(pinned)+window)
	tail = append(tail, pinned...)
	tail = append(tail, msgs[evicted:]...)
	s.Messages.Messages = tail

	s.lastConsolidated -= evicted
	if s.lastConsolidated < 0 {
		s.lastConsolidated = 0
	}
	s.UpdatedAt = time.Now()
}

// Compact drops messages that have already been consolidated, keeping only the
// tail of length keepCount. lastConsolidated is reset to 0 because the
// retained messages are the new beginning of the in-memory slice.
// Callers must not hold s.mu when calling Compact.
func (s *Session) Compact(keepCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.Messages.Messages
	if keepCount <= 0 || len(msgs) <= keepCount {
		return
	}
	tail := make([]schema.Message, keepCount)
	copy(tail, msgs[len(msgs)-keepCount:])
	s.Messages.Messages = tail
	s.lastConsolidated = 0
	s.UpdatedAt = time.Now()
}

// Clear resets messages and the consolidation pointer.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = schema.NewMessages()
	s.lastConsolidated = 0
	s.UpdatedAt = time.Now()
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// CopyMessages returns a snapshot of the current message list.
// Caller must hold s.mu.
func (s *Session) CopyMessages() schema.Messages {
	return s.Messages.Clone()
}

// LastConsolidated returns the consolidation pointer.
// Caller must hold s.mu.
func (s *Session) LastConsolidated() int {
	return s.lastConsolidated
}

// SetLastConsolidated updates the consolidation pointer.
// Caller must hold s.mu.
func (s *Session) SetLastConsolidated(n int) {
	s.lastConsolidated = n
}
