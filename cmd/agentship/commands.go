package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/agentship/agentship/pkg/agent"
	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/mcp"
	"github.com/agentship/agentship/pkg/protocol"
)

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentship version %s\n", version)
	return nil
}

// ChatCmd runs a single chat turn against one agent.
type ChatCmd struct {
	Query string `arg:"" help:"Message to send to the agent."`

	Agent   string `help:"Agent name (defaults to the only agent in the config)."`
	User    string `help:"User identifier." default:"local"`
	Session string `help:"Session identifier (conversations with the same id share history)." default:"default"`
	Stream  *bool  `default:"true" negatable:"" help:"Stream the response (use --no-stream to disable)."`
	Watch   bool   `help:"Watch the config for changes and rebuild agents."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	rt, err := agent.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if c.Watch {
		go func() {
			_ = config.Watch(ctx, cli.Config, func(*config.Config) {
				_ = rt.Rebuild(ctx)
			})
		}()
	}

	target, err := c.pickAgent(rt, cfg)
	if err != nil {
		return err
	}

	req := &protocol.ChatRequest{
		AgentName: target.Name(),
		UserID:    c.User,
		SessionID: c.Session,
		Query:     c.Query,
	}

	if c.Stream == nil || *c.Stream {
		return c.runStreaming(ctx, target, req)
	}
	return c.runBlocking(ctx, target, req)
}

func (c *ChatCmd) pickAgent(rt *agent.Runtime, cfg *config.Config) (*agent.Agent, error) {
	if c.Agent != "" {
		return rt.Agents().GetAgent(c.Agent)
	}
	if len(cfg.Agents) == 1 {
		return rt.Agents().GetAgent(cfg.Agents[0].AgentName)
	}
	return nil, fmt.Errorf("--agent is required when the config defines multiple agents")
}

func (c *ChatCmd) runStreaming(ctx context.Context, target *agent.Agent, req *protocol.ChatRequest) error {
	events, err := target.ChatStream(ctx, req)
	if err != nil {
		return err
	}

	for event := range events {
		switch event.Type {
		case protocol.EventContent:
			fmt.Print(event.Text)
		case protocol.EventToolCall:
			fmt.Printf("\n[tool] %s\n", event.ToolName)
		case protocol.EventError:
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", event.Error)
		case protocol.EventDone:
			fmt.Println()
		}
	}
	return nil
}

func (c *ChatCmd) runBlocking(ctx context.Context, target *agent.Agent, req *protocol.ChatRequest) error {
	resp, err := target.Chat(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	switch out := resp.Response.(type) {
	case string:
		fmt.Println(out)
	default:
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
	}
	return nil
}

// ValidateCmd loads the configuration and reports problems.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK: %d agent(s)\n", len(cfg.Agents))
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		fmt.Printf("  - %s (%s, %s/%s)\n", a.AgentName, a.ExecutionEngine, a.LLMProviderName, a.LLMModel)
	}
	return nil
}

// InfoCmd shows agent information.
type InfoCmd struct {
	Agent string `arg:"" optional:"" help:"Agent name to show info for."`
}

func (c *InfoCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	if c.Agent == "" {
		fmt.Println("Available agents:")
		for i := range cfg.Agents {
			a := &cfg.Agents[i]
			desc := a.Description
			if desc == "" {
				desc = "(no description)"
			}
			fmt.Printf("  - %s: %s\n", a.AgentName, desc)
		}
		return nil
	}

	a, ok := cfg.Get(c.Agent)
	if !ok {
		return fmt.Errorf("agent %q not found", c.Agent)
	}

	fmt.Printf("\nAgent: %s\n", a.AgentName)
	if a.Description != "" {
		fmt.Printf("Description: %s\n", a.Description)
	}
	fmt.Printf("Engine:      %s\n", a.ExecutionEngine)
	fmt.Printf("LLM:         %s/%s\n", a.LLMProviderName, a.LLMModel)
	if len(a.Tools) > 0 {
		fmt.Printf("Tools:       %d declared\n", len(a.Tools))
	}
	if len(a.MCPServers) > 0 {
		fmt.Printf("MCP:         %v\n", mcpServerIDs(a))
	}
	return nil
}

func mcpServerIDs(a *config.AgentConfig) []string {
	ids := make([]string, 0, len(a.MCPServers))
	for _, ref := range a.MCPServers {
		ids = append(ids, ref.ID)
	}
	return ids
}

// MCPToolsCmd connects to one registered MCP server and lists its tools.
type MCPToolsCmd struct {
	Server string `arg:"" help:"Server id from the MCP servers file."`
	User   string `help:"User identifier for authenticated servers." default:"local"`
}

func (c *MCPToolsCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := mcp.DefaultRegistry()
	if err != nil {
		return err
	}
	serverCfg, ok := registry.Get(c.Server)
	if !ok {
		return fmt.Errorf("unknown MCP server %q (registered: %v)", c.Server, registry.ListIDs())
	}

	manager := mcp.DefaultManager()
	defer manager.CloseAll()

	client, err := manager.Get(serverCfg, "cli")
	if err != nil {
		return err
	}

	tools, err := client.ListTools(mcp.WithUserID(ctx, c.User))
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d tool(s)\n", c.Server, len(tools))
	for _, tool := range tools {
		fmt.Printf("  - %s: %s\n", tool.Name, tool.Description)
	}
	return nil
}
