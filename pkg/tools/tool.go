// Package tools turns an agent's tool declarations into callable tools:
// locally registered functions, sub-agents wrapped as tools, and remote MCP
// tools discovered through the client manager.
package tools

import (
	"context"

	"github.com/agentship/agentship/pkg/llms"
	"github.com/agentship/agentship/pkg/protocol"
)

// Tool is one callable exposed to the LLM. Parameters returns a JSON
// schema object; Execute returns the result as a string (JSON-encoded for
// structured results).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Metadata carries observability attributes for a tool. Tools that do not
// implement MetadataProvider get zero metadata.
type Metadata struct {
	IsAgentTool bool
	ServerID    string
}

type MetadataProvider interface {
	Metadata() Metadata
}

// ChatAgent is the slice of an agent the tool layer needs to invoke it as
// a sub-agent. Defined here to keep the agent package depending on tools,
// not the reverse.
type ChatAgent interface {
	Name() string
	Description() string
	Chat(ctx context.Context, req *protocol.ChatRequest) (*protocol.ChatResponse, error)
}

// AgentResolver resolves a registered agent by name. Resolution is lazy so
// agents can reference each other regardless of registration order.
type AgentResolver func(name string) (ChatAgent, error)

// ToDefinitions converts tools to the provider-neutral shape.
func ToDefinitions(tools []Tool) []llms.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]llms.ToolDefinition, len(tools))
	for i, tool := range tools {
		params := tool.Parameters()
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs[i] = llms.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		}
	}
	return defs
}

// RequestScope identifies the chat request a tool call belongs to. Engines
// attach it before invoking tools; sub-agent tools read it to propagate
// the user and derive sub-session ids.
type RequestScope struct {
	UserID    string
	SessionID string
}

type requestScopeKey struct{}

func WithRequestScope(ctx context.Context, scope RequestScope) context.Context {
	return context.WithValue(ctx, requestScopeKey{}, scope)
}

func ScopeFrom(ctx context.Context) (RequestScope, bool) {
	scope, ok := ctx.Value(requestScopeKey{}).(RequestScope)
	return scope, ok
}
