package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const (
	mcpProtocolVersion = "2024-11-05"
	clientName         = "agentship"
	clientVersion      = "1.0.0"

	// pingTimeout bounds the liveness ping before reusing a session.
	pingTimeout = 2 * time.Second
)

type stdioState int

const (
	stdioIdle stdioState = iota
	stdioReady
	stdioClosed
)

// StdioClient runs an MCP server as a child process and speaks JSON-RPC
// over its stdin/stdout. One long-lived session is established lazily and
// reused; a failed liveness ping tears it down and respawns the child
// before servicing the call.
type StdioClient struct {
	cfg *ServerConfig

	mu     sync.Mutex
	state  stdioState
	client *mcpclient.Client
	tools  []ToolInfo
}

func NewStdioClient(cfg *ServerConfig) *StdioClient {
	return &StdioClient{cfg: cfg}
}

// ensureSession returns a live session, spawning or respawning the child
// as needed. Caller must hold c.mu.
func (c *StdioClient) ensureSession(ctx context.Context) (*mcpclient.Client, error) {
	if c.state == stdioClosed {
		return nil, fmt.Errorf("MCP client for %q is closed", c.cfg.ID)
	}

	if c.state == stdioReady {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := c.client.Ping(pingCtx)
		cancel()
		if err == nil {
			return c.client, nil
		}
		slog.Warn("MCP stdio session unresponsive, respawning",
			"server", c.cfg.ID,
			"command", c.cfg.Command[0],
			"error", err)
		c.teardown()
	}

	return c.spawn(ctx)
}

// spawn starts the child process and initializes the MCP session.
// Caller must hold c.mu.
func (c *StdioClient) spawn(ctx context.Context) (*mcpclient.Client, error) {
	env := make([]string, 0, len(c.cfg.Env))
	for k, v := range c.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := mcpclient.NewStdioMCPClient(c.cfg.Command[0], env, c.cfg.Command[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	initReq.Params.ProtocolVersion = mcpProtocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	c.client = mcpClient
	c.state = stdioReady
	c.tools = nil

	slog.Info("connected to MCP server (stdio)",
		"server", c.cfg.ID,
		"command", c.cfg.Command[0])
	return c.client, nil
}

// teardown closes the current session, swallowing close errors: a child
// that died mid-session fails its own cleanup and that is expected.
// Caller must hold c.mu.
func (c *StdioClient) teardown() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Debug("MCP stdio close error during teardown", "server", c.cfg.ID, "error", err)
		}
		c.client = nil
	}
	c.state = stdioIdle
	c.tools = nil
}

func (c *StdioClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tools != nil {
		return c.tools, nil
	}

	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	listResp, err := session.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolInfo, 0, len(listResp.Tools))
	for _, tool := range listResp.Tools {
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	c.tools = tools
	return tools, nil
}

func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	session, err := c.ensureSession(ctx)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	// Null arguments are sent as an empty object.
	if args == nil {
		args = map[string]any{}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Second)
		defer cancel()
	}

	resp, err := session.CallTool(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}

	return flattenToolResult(resp)
}

func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardown()
	c.state = stdioClosed
	return nil
}

// flattenToolResult collects the text content of a call result. Server-side
// tool errors come back as errors so callers decide how to surface them.
func flattenToolResult(resp *mcpgo.CallToolResult) (string, error) {
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcpgo.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return "", fmt.Errorf("tool error: %s", msg)
	}

	switch len(texts) {
	case 0:
		return "", nil
	case 1:
		return texts[0], nil
	default:
		encoded, err := json.Marshal(texts)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool result: %w", err)
		}
		return string(encoded), nil
	}
}

func schemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
