package schema

import "context"

// AgentSettings are the immutable per-run parameters of the agent loop,
// derived once from config and passed into the loop's constructor.
type AgentSettings struct {
	Model        string
	MaxIter      int
	Temperature  float64
	MaxTokens    int
	MemoryWindow int
}

func NewAgentSettings(model string, maxIter int, temperature float64, maxTokens int, memoryWindow int) AgentSettings {
	return AgentSettings{
		Model:        model,
		MaxIter:      maxIter,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		MemoryWindow: memoryWindow,
	}
}

type AgentLooper interface {
	// ProcessDirect runs one full agent turn outside the bus flow
	// (single-shot CLI, cron jobs, heartbeat, subagent announcements).
	ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) string
	// Run consumes inbound bus messages until ctx is cancelled.
	Run(ctx context.Context) error
}
