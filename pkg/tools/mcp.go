package tools

import (
	"context"

	"github.com/agentship/agentship/pkg/mcp"
)

// MCPTool exposes one remote tool from an MCP server. The client is owned
// by the manager; this wrapper only borrows it for calls.
type MCPTool struct {
	serverID string
	client   mcp.Client
	info     mcp.ToolInfo
}

func NewMCPTool(serverID string, client mcp.Client, info mcp.ToolInfo) *MCPTool {
	return &MCPTool{serverID: serverID, client: client, info: info}
}

func (t *MCPTool) Name() string        { return t.info.Name }
func (t *MCPTool) Description() string { return t.info.Description }

func (t *MCPTool) Parameters() map[string]any { return t.info.InputSchema }

func (t *MCPTool) Metadata() Metadata {
	return Metadata{ServerID: t.serverID}
}

func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if scope, ok := ScopeFrom(ctx); ok {
		ctx = mcp.WithUserID(ctx, scope.UserID)
	}
	return t.client.CallTool(ctx, t.info.Name, args)
}
