package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/engine"
	"github.com/agentship/agentship/pkg/engine/native"
	"github.com/agentship/agentship/pkg/engine/orchestrated"
	"github.com/agentship/agentship/pkg/llms"
	"github.com/agentship/agentship/pkg/mcp"
	"github.com/agentship/agentship/pkg/observability"
	"github.com/agentship/agentship/pkg/runner"
	"github.com/agentship/agentship/pkg/session"
	"github.com/agentship/agentship/pkg/tools"
)

// Runtime assembles and owns all agents of one process: shared LLM
// provider instances, the tool manager, per-agent session stores and the
// MCP client manager.
type Runtime struct {
	providers   *llms.Registry
	functions   *tools.FunctionRegistry
	agents      *Registry
	toolManager *tools.Manager
	mcpManager  *mcp.Manager
	prompt      *tools.PromptBuilder
}

// NewRuntime builds every agent in cfg. Agents may reference each other
// as tools; resolution is lazy through the registry so order does not
// matter.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	mcpRegistry, err := mcp.DefaultRegistry()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		providers:  llms.NewRegistry(),
		functions:  tools.NewFunctionRegistry(),
		agents:     NewRegistry(),
		mcpManager: mcp.DefaultManager(),
		prompt:     tools.NewPromptBuilder(),
	}

	resolve := func(name string) (tools.ChatAgent, error) {
		return rt.agents.GetAgent(name)
	}
	rt.toolManager = tools.NewManager(rt.functions, resolve, mcpRegistry, rt.mcpManager)

	for i := range cfg.Agents {
		agentCfg := &cfg.Agents[i]
		built, err := rt.buildAgent(ctx, agentCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build agent %q: %w", agentCfg.AgentName, err)
		}
		if err := rt.agents.Register(agentCfg.AgentName, built); err != nil {
			return nil, err
		}
		slog.Info("agent ready",
			"agent", agentCfg.AgentName,
			"engine", agentCfg.ExecutionEngine,
			"model", agentCfg.LLMModel)
	}

	return rt, nil
}

// Agents exposes the agent registry.
func (rt *Runtime) Agents() *Registry { return rt.agents }

// Functions exposes the function registry for host-code tool
// registration. Register functions before NewRuntime builds the agents
// that use them, or call Rebuild afterwards.
func (rt *Runtime) Functions() *tools.FunctionRegistry { return rt.functions }

// Rebuild refreshes every agent's engine state (tools, prompts) in place.
// Called by the config watcher after a change.
func (rt *Runtime) Rebuild(ctx context.Context) error {
	for _, a := range rt.agents.List() {
		if err := a.Rebuild(ctx); err != nil {
			return fmt.Errorf("failed to rebuild agent %q: %w", a.Name(), err)
		}
	}
	return nil
}

// Close releases shared resources: MCP clients and provider connections.
func (rt *Runtime) Close() {
	rt.mcpManager.CloseAll()
	for _, provider := range rt.providers.List() {
		if err := provider.Close(); err != nil {
			slog.Debug("error closing LLM provider", "error", err)
		}
	}
}

func (rt *Runtime) buildAgent(ctx context.Context, agentCfg *config.AgentConfig) (*Agent, error) {
	structured := agentCfg.OutputSchema != nil
	providerName := agentCfg.LLMProviderName + "/" + agentCfg.LLMModel
	if structured {
		// Structured-output instances carry a different request shape, so
		// they never share with plain instances of the same model.
		providerName += "+json"
	}
	provider, err := rt.providers.CreateFromConfig(providerName, &llms.ProviderConfig{
		Type:             agentCfg.LLMProviderName,
		Model:            agentCfg.LLMModel,
		APIKey:           config.GetProviderAPIKey(agentCfg.LLMProviderName),
		Temperature:      agentCfg.Temperature,
		StructuredOutput: structured,
	})
	if err != nil {
		return nil, err
	}

	store, err := rt.storeFor(agentCfg)
	if err != nil {
		return nil, err
	}

	observer := observability.ForProvider(agentCfg.Observability)

	buildParts := func(ctx context.Context) ([]tools.Tool, string, error) {
		toolset, err := rt.toolManager.CreateTools(ctx, agentCfg)
		if err != nil {
			return nil, "", err
		}
		systemPrompt, err := rt.prompt.Build(agentCfg, toolset)
		if err != nil {
			return nil, "", err
		}
		return toolset, systemPrompt, nil
	}

	var eng engine.Engine
	switch agentCfg.ExecutionEngine {
	case config.EngineNative:
		eng, err = native.New(ctx, agentCfg, store, observer,
			func(ctx context.Context) (llms.Provider, []tools.Tool, string, error) {
				toolset, systemPrompt, err := buildParts(ctx)
				return provider, toolset, systemPrompt, err
			})

	case config.EngineOrchestrated:
		eng, err = orchestrated.New(ctx, agentCfg,
			func(ctx context.Context) (runner.Runner, error) {
				toolset, systemPrompt, err := buildParts(ctx)
				if err != nil {
					return nil, err
				}
				return runner.NewLocalRunner(provider, toolset, store, observer, systemPrompt, agentCfg.MaxToolRounds), nil
			})

	default:
		return nil, fmt.Errorf("unknown execution engine %q", agentCfg.ExecutionEngine)
	}
	if err != nil {
		return nil, err
	}

	return New(agentCfg, eng), nil
}

// storeFor selects the session backend the agent config asks for.
func (rt *Runtime) storeFor(agentCfg *config.AgentConfig) (session.Store, error) {
	switch agentCfg.Memory.Backend {
	case config.MemoryBackendDatabase:
		dsn := os.Getenv(session.EnvSessionStoreURI)
		if dsn == "" {
			return nil, fmt.Errorf("memory backend %q requires %s", agentCfg.Memory.Backend, session.EnvSessionStoreURI)
		}
		return session.NewPostgresStore(dsn), nil
	case config.MemoryBackendVertexAI:
		// The orchestrated runner owns history for this backend; local
		// development falls back to the in-memory store.
		return session.NewMemoryStore(), nil
	default:
		return session.FromEnv()
	}
}
