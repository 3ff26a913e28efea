// Package dependency wires core amberseal services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"path/filepath"

	"go.uber.org/dig"

	"github.com/amberseal/amberseal/internal/agent"
	"github.com/amberseal/amberseal/internal/bus"
	"github.com/amberseal/amberseal/internal/config"
	"github.com/amberseal/amberseal/internal/cron"
	"github.com/amberseal/amberseal/internal/providers"
	"github.com/amberseal/amberseal/internal/schema"
	"github.com/amberseal/amberseal/internal/session"
	"github.com/amberseal/amberseal/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	provider schema.LLMProvider
	msgBus   *bus.MessageBus
	loop     *agent.AgentLoop
	cronSvc  *cron.Service
	sessions *session.Manager
}

func (c *Container) Provider() schema.LLMProvider { return c.provider }
func (c *Container) MessageBus() *bus.MessageBus  { return c.msgBus }
func (c *Container) AgentLoop() *agent.AgentLoop  { return c.loop }
func (c *Container) CronService() *cron.Service   { return c.cronSvc }
func (c *Container) Sessions() *session.Manager   { return c.sessions }

// AgentRegistry wraps the full tool registry used by the main agent loop.
type AgentRegistry struct{ *tools.Registry }

// SubagentRegistry wraps the restricted tool registry used by subagents.
// It must not contain spawn or message tools to prevent recursion and
// unsolicited outbound messages.
type SubagentRegistry struct{ *tools.Registry }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	for _, provide := range []any{
		func() *config.Config { return cfg },
		newProvider,
		newAgentSettings,
		newMessageBus,
		newSessionManager,
		newMemoryStore,
		newCronService,
		newSubagentToolRegistry,
		newSubagentManager,
		newAgentRegistry,
		newContextBuilder,
		newAgentLoop,
	} {
		if err := d.Provide(provide); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		provider schema.LLMProvider,
		msgBus *bus.MessageBus,
		loop *agent.AgentLoop,
		cronSvc *cron.Service,
		sessions *session.Manager,
	) {
		result = &Container{
			provider: provider,
			msgBus:   msgBus,
			loop:     loop,
			cronSvc:  cronSvc,
			sessions: sessions,
		}
	})
	return result, err
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	model, _, _, _, _ := cfg.AgentSettingsValues()

	name := "custom"
	if spec := providers.FindByModel(model); spec != nil {
		name = spec.Name
	}
	pc := cfg.ProviderByName(name)

	// A gateway key serves any model when the matched provider has none.
	if pc == nil || pc.APIKey == "" {
		if or := cfg.ProviderByName("openrouter"); or != nil && or.APIKey != "" {
			name, pc = "openrouter", or
		}
	}
	// A custom endpoint (e.g. a local server) may not need a key.
	if pc == nil || pc.APIKey == "" {
		if cu := cfg.ProviderByName("custom"); cu != nil && cu.APIBase != "" {
			name, pc = "custom", cu
		}
	}
	if pc == nil || (pc.APIKey == "" && pc.APIBase == "") {
		return nil, fmt.Errorf("no API key configured for model %q — edit %s", model, config.ConfigPath())
	}

	return providers.NewOpenAIProvider(pc.APIKey, pc.APIBase, model, name, pc.ExtraHeaders), nil
}

func newAgentSettings(cfg *config.Config) schema.AgentSettings {
	model, maxIter, temperature, maxTokens, memoryWindow := cfg.AgentSettingsValues()
	return schema.NewAgentSettings(model, maxIter, temperature, maxTokens, memoryWindow)
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newSessionManager(cfg *config.Config) (*session.Manager, error) {
	return session.NewManager(cfg.WorkspacePath())
}

func newMemoryStore(cfg *config.Config) (schema.MemoryStore, error) {
	return agent.NewMemoryStore(cfg.WorkspacePath())
}

func newCronService() *cron.Service {
	return cron.NewService(filepath.Join(config.DataDir(), "cron", "jobs.json"))
}

func newSubagentToolRegistry(cfg *config.Config) SubagentRegistry {
	workspace := cfg.WorkspacePath()
	allowedDir := ""
	if cfg.Tools.RestrictToWorkspace {
		allowedDir = workspace
	}

	registry := tools.NewRegistryBuilder().
		WithTool(tools.NewReadFileTool(workspace, allowedDir)).
		WithTool(tools.NewWriteFileTool(workspace, allowedDir)).
		WithTool(tools.NewEditFileTool(workspace, allowedDir)).
		WithTool(tools.NewExecTool(workspace, cfg.Tools.Exec.Timeout, cfg.Tools.RestrictToWorkspace)).
		WithTool(tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults)).
		WithTool(tools.NewWebFetchTool(0)).
		Build()

	return SubagentRegistry{registry}
}

func newSubagentManager(
	b *bus.MessageBus,
	p schema.LLMProvider,
	settings schema.AgentSettings,
	reg SubagentRegistry,
	cfg *config.Config,
) *agent.SubagentManager {
	return agent.NewSubagentManager(b, p, settings, reg.Registry, cfg.WorkspacePath())
}

func newAgentRegistry(
	cfg *config.Config,
	b *bus.MessageBus,
	subMgr *agent.SubagentManager,
	cronSvc *cron.Service,
	memory schema.MemoryStore,
) AgentRegistry {
	workspace := cfg.WorkspacePath()
	allowedDir := ""
	if cfg.Tools.RestrictToWorkspace {
		allowedDir = workspace
	}

	registry := tools.NewRegistryBuilder().
		WithTool(tools.NewReadFileTool(workspace, allowedDir)).
		WithTool(tools.NewWriteFileTool(workspace, allowedDir)).
		WithTool(tools.NewEditFileTool(workspace, allowedDir)).
		WithTool(tools.NewListDirTool(workspace, allowedDir)).
		WithTool(tools.NewExecTool(workspace, cfg.Tools.Exec.Timeout, cfg.Tools.RestrictToWorkspace)).
		WithTool(tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults)).
		WithTool(tools.NewWebFetchTool(0)).
		WithTool(tools.NewMessageTool(b)).
		WithTool(tools.NewSpawnTool(subMgr)).
		WithTool(tools.NewCronTool(cronSvc)).
		WithTool(tools.NewSaveMemoryTool(memory)).
		Build()

	return AgentRegistry{registry}
}

func newContextBuilder(cfg *config.Config, memory schema.MemoryStore) *agent.ContextBuilder {
	return agent.NewContextBuilder(cfg.WorkspacePath(), "", memory)
}

func newAgentLoop(
	b *bus.MessageBus,
	p schema.LLMProvider,
	settings schema.AgentSettings,
	sessions *session.Manager,
	memory schema.MemoryStore,
	reg AgentRegistry,
	cb *agent.ContextBuilder,
) *agent.AgentLoop {
	return agent.NewAgentLoop(b, p, settings, sessions, memory, reg.Registry, cb)
}
