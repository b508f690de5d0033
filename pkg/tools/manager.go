package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/mcp"
)

// Manager builds the tool list for an agent from its config.
type Manager struct {
	functions   *FunctionRegistry
	resolve     AgentResolver
	mcpRegistry *mcp.Registry
	mcpClients  *mcp.Manager
}

func NewManager(functions *FunctionRegistry, resolve AgentResolver, mcpRegistry *mcp.Registry, mcpClients *mcp.Manager) *Manager {
	if functions == nil {
		functions = NewFunctionRegistry()
	}
	return &Manager{
		functions:   functions,
		resolve:     resolve,
		mcpRegistry: mcpRegistry,
		mcpClients:  mcpClients,
	}
}

// Functions exposes the function registry for host-code registration.
func (m *Manager) Functions() *FunctionRegistry { return m.functions }

// CreateTools resolves every tool declaration and MCP server reference of
// the agent config into callable tools. The agent's name is the client
// manager owner, so each agent gets its own MCP connections.
func (m *Manager) CreateTools(ctx context.Context, cfg *config.AgentConfig) ([]Tool, error) {
	var tools []Tool

	for i := range cfg.Tools {
		decl := &cfg.Tools[i]
		switch decl.Type {
		case config.ToolKindFunction:
			tool, exists := m.functions.Get(decl.Function)
			if !exists {
				return nil, fmt.Errorf("agent %q: function %q is not registered", cfg.AgentName, decl.Function)
			}
			tools = append(tools, tool)

		case config.ToolKindAgent:
			if m.resolve == nil {
				return nil, fmt.Errorf("agent %q: no agent resolver configured for tool %q", cfg.AgentName, decl.ID)
			}
			tools = append(tools, NewAgentTool(decl.Agent, "", m.resolve))

		case config.ToolKindMCPRef:
			mcpTools, err := m.mcpTools(ctx, cfg.AgentName, decl.Server, decl.Tools, nil, 0)
			if err != nil {
				return nil, fmt.Errorf("agent %q: %w", cfg.AgentName, err)
			}
			tools = append(tools, mcpTools...)

		default:
			return nil, fmt.Errorf("agent %q: unknown tool type %q", cfg.AgentName, decl.Type)
		}
	}

	for _, ref := range cfg.MCPServers {
		mcpTools, err := m.mcpTools(ctx, cfg.AgentName, ref.ID, ref.Tools, ref.Env, ref.Timeout)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", cfg.AgentName, err)
		}
		tools = append(tools, mcpTools...)
	}

	return tools, nil
}

// mcpTools discovers the tools of one referenced server, applying the
// per-agent allowlist and env/timeout overrides.
func (m *Manager) mcpTools(ctx context.Context, owner, serverID string, allowlist []string, envOverride map[string]string, timeoutOverride int) ([]Tool, error) {
	if m.mcpRegistry == nil || m.mcpClients == nil {
		return nil, fmt.Errorf("MCP subsystem not configured, cannot resolve server %q", serverID)
	}

	serverCfg, exists := m.mcpRegistry.Get(serverID)
	if !exists {
		return nil, fmt.Errorf("MCP server %q not found in registry", serverID)
	}

	if len(envOverride) > 0 || timeoutOverride > 0 {
		override := *serverCfg
		if len(envOverride) > 0 {
			merged := make(map[string]string, len(serverCfg.Env)+len(envOverride))
			for k, v := range serverCfg.Env {
				merged[k] = v
			}
			for k, v := range envOverride {
				merged[k] = v
			}
			override.Env = merged
		}
		if timeoutOverride > 0 {
			override.Timeout = timeoutOverride
		}
		serverCfg = &override
	}

	client, err := m.mcpClients.Get(serverCfg, owner)
	if err != nil {
		return nil, err
	}

	infos, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tools on %q: %w", serverID, err)
	}

	allowed := mergeAllowlists(serverCfg.Tools, allowlist)

	var tools []Tool
	for _, info := range infos {
		if allowed != nil && !allowed[info.Name] {
			continue
		}
		tools = append(tools, NewMCPTool(serverID, client, info))
	}

	slog.Debug("resolved MCP tools",
		"server", serverID,
		"owner", owner,
		"discovered", len(infos),
		"exposed", len(tools))
	return tools, nil
}

// mergeAllowlists intersects the server-level and reference-level
// allowlists; nil means everything is allowed.
func mergeAllowlists(serverList, refList []string) map[string]bool {
	if len(serverList) == 0 && len(refList) == 0 {
		return nil
	}

	toSet := func(list []string) map[string]bool {
		if len(list) == 0 {
			return nil
		}
		set := make(map[string]bool, len(list))
		for _, name := range list {
			set[name] = true
		}
		return set
	}

	serverSet, refSet := toSet(serverList), toSet(refList)
	if serverSet == nil {
		return refSet
	}
	if refSet == nil {
		return serverSet
	}

	merged := make(map[string]bool)
	for name := range refSet {
		if serverSet[name] {
			merged[name] = true
		}
	}
	return merged
}
