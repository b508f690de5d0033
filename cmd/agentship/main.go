// Command agentship is the CLI for the AgentShip runtime.
//
// Usage:
//
//	agentship chat --config agents.yaml --agent assistant "hello"
//	agentship validate --config agents.yaml
//	agentship mcp-tools --server github
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Chat     ChatCmd     `cmd:"" help:"Chat with an agent."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Info     InfoCmd     `cmd:"" help:"Show agent information."`
	MCPTools MCPToolsCmd `cmd:"" name:"mcp-tools" help:"List tools exposed by a registered MCP server."`

	Config   string `short:"c" help:"Path to agent config file or directory." type:"path" default:"agents.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentship"),
		kong.Description("AgentShip - config-driven LLM agent runtime"),
		kong.UsageOnError(),
	)

	logger.Configure(os.Stderr, logger.ParseLevel(cli.LogLevel))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
