package mcp

import (
	"context"
	"fmt"
)

// ToolInfo describes one remote tool as reported by an MCP server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Client is the transport-neutral MCP connection. CallTool returns the
// server's text content; structured results come back JSON-encoded.
type Client interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// ReconnectError is the recoverable error class for authentication
// problems: expired tokens without a refresh path, or a 401 from the
// server. Callers should re-run the auth flow and reconnect.
type ReconnectError struct {
	ServerID string
	Reason   string
	Err      error
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("MCP server %q requires reconnection: %s", e.ServerID, e.Reason)
}

func (e *ReconnectError) Unwrap() error { return e.Err }
