// Package config defines the configuration schema for amberseal.
//
// Config lives at ~/.amberseal/config.json with camelCase keys.
// Missing files and unknown keys fall back to defaults so a partial config
// is always usable.
package config

import (
	"os"
	"path/filepath"
)

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
}

// ProvidersConfig holds credentials for all supported LLM providers.
type ProvidersConfig struct {
	Custom     ProviderConfig `json:"custom"`
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
}

// AgentDefaults holds default values for agent behaviour.
type AgentDefaults struct {
	Workspace    string  `json:"workspace"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	MaxToolIter  int     `json:"maxToolIterations"`
	MemoryWindow int     `json:"memoryWindow"`
}

func defaultAgentDefaults() AgentDefaults {
	return AgentDefaults{
		Workspace:    "~/.amberseal/workspace",
		Model:        "anthropic/claude-opus-4-5",
		MaxTokens:    8192,
		Temperature:  0.7,
		MaxToolIter:  20,
		MemoryWindow: 50,
	}
}

// AgentsConfig wraps agent defaults.
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

func defaultAgentsConfig() AgentsConfig {
	return AgentsConfig{Defaults: defaultAgentDefaults()}
}

// ---- Channel configs -------------------------------------------------------

// WhatsAppConfig configures the WhatsApp bridge channel.
type WhatsAppConfig struct {
	Enabled     bool     `json:"enabled"`
	BridgeURL   string   `json:"bridgeUrl"`
	BridgeToken string   `json:"bridgeToken"`
	AllowFrom   []string `json:"allowFrom"`
}

func defaultWhatsAppConfig() WhatsAppConfig {
	return WhatsAppConfig{BridgeURL: "ws://localhost:3001", AllowFrom: []string{}}
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled        bool     `json:"enabled"`
	Token          string   `json:"token"`
	AllowFrom      []string `json:"allowFrom"`
	Proxy          string   `json:"proxy,omitempty"`
	ReplyToMessage bool     `json:"replyToMessage"`
}

func defaultTelegramConfig() TelegramConfig {
	return TelegramConfig{AllowFrom: []string{}}
}

// SlackDMConfig controls direct-message behaviour in Slack.
type SlackDMConfig struct {
	Enabled   bool     `json:"enabled"`
	Policy    string   `json:"policy"` // "open" or "allowlist"
	AllowFrom []string `json:"allowFrom"`
}

func defaultSlackDMConfig() SlackDMConfig {
	return SlackDMConfig{Enabled: true, Policy: "open", AllowFrom: []string{}}
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled        bool          `json:"enabled"`
	Mode           string        `json:"mode"`
	BotToken       string        `json:"botToken"`
	AppToken       string        `json:"appToken"`
	ReplyInThread  bool          `json:"replyInThread"`
	ReactEmoji     string        `json:"reactEmoji"`
	GroupPolicy    string        `json:"groupPolicy"` // "open", "mention", or "allowlist"
	GroupAllowFrom []string      `json:"groupAllowFrom"`
	DM             SlackDMConfig `json:"dm"`
}

func defaultSlackConfig() SlackConfig {
	return SlackConfig{
		Mode:           "socket",
		ReplyInThread:  true,
		ReactEmoji:     "eyes",
		GroupPolicy:    "mention",
		GroupAllowFrom: []string{},
		DM:             defaultSlackDMConfig(),
	}
}

// ChannelsConfig groups all channel configurations.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

func defaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		WhatsApp: defaultWhatsAppConfig(),
		Telegram: defaultTelegramConfig(),
		Slack:    defaultSlackConfig(),
	}
}

// ---- Tool configs ----------------------------------------------------------

// WebSearchConfig configures the Brave web-search tool.
type WebSearchConfig struct {
	APIKey     string `json:"apiKey"`
	MaxResults int    `json:"maxResults"`
}

func defaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{MaxResults: 5}
}

// WebToolsConfig groups web-related tool settings.
type WebToolsConfig struct {
	Search WebSearchConfig `json:"search"`
}

// ExecToolConfig configures the shell-exec tool.
type ExecToolConfig struct {
	Timeout int `json:"timeout"` // seconds
}

// ToolsConfig groups all tool-level settings.
type ToolsConfig struct {
	Web                 WebToolsConfig `json:"web"`
	Exec                ExecToolConfig `json:"exec"`
	RestrictToWorkspace bool           `json:"restrictToWorkspace"`
}

func defaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		Web:  WebToolsConfig{Search: defaultWebSearchConfig()},
		Exec: ExecToolConfig{Timeout: 60},
	}
}

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func defaultGatewayConfig() GatewayConfig {
	return GatewayConfig{Host: "0.0.0.0", Port: 18790}
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.amberseal/config.json.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Tools     ToolsConfig     `json:"tools"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agents:    defaultAgentsConfig(),
		Channels:  defaultChannelsConfig(),
		Providers: ProvidersConfig{},
		Gateway:   defaultGatewayConfig(),
		Tools:     defaultToolsConfig(),
	}
}

// WorkspacePath returns the expanded absolute path to the agent workspace.
func (c *Config) WorkspacePath() string {
	ws := c.Agents.Defaults.Workspace
	if ws == "" {
		ws = "~/.amberseal/workspace"
	}
	if len(ws) >= 2 && ws[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			ws = filepath.Join(home, ws[2:])
		}
	}
	return ws
}

// AgentSettingsValues returns the loop parameters as plain values.
// Zero or negative config entries fall back to the defaults.
func (c *Config) AgentSettingsValues() (model string, maxIter int, temperature float64, maxTokens, memoryWindow int) {
	d := c.Agents.Defaults
	def := defaultAgentDefaults()
	if d.Model == "" {
		d.Model = def.Model
	}
	if d.MaxToolIter <= 0 {
		d.MaxToolIter = def.MaxToolIter
	}
	if d.MaxTokens <= 0 {
		d.MaxTokens = def.MaxTokens
	}
	if d.Temperature <= 0 {
		d.Temperature = def.Temperature
	}
	if d.MemoryWindow <= 0 {
		d.MemoryWindow = def.MemoryWindow
	}
	return d.Model, d.MaxToolIter, d.Temperature, d.MaxTokens, d.MemoryWindow
}

// ProviderByName returns a pointer to the ProviderConfig field matching the
// given registry name (e.g. "openrouter", "anthropic"). Returns nil if unknown.
func (c *Config) ProviderByName(name string) *ProviderConfig {
	switch name {
	case "custom":
		return &c.Providers.Custom
	case "anthropic":
		return &c.Providers.Anthropic
	case "openai":
		return &c.Providers.OpenAI
	case "openrouter":
		return &c.Providers.OpenRouter
	}
	return nil
}
