// Package mcp implements the MCP (Model Context Protocol) subsystem: server
// definitions, transport clients (stdio subprocess and authenticated
// HTTP/SSE), the per-owner client manager and OAuth token storage.
package mcp

import (
	"fmt"
	"os"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Transport selectors.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Auth types.
const (
	AuthNone        = "none"
	AuthBearerToken = "bearer_token"
	AuthOAuth       = "oauth"
	AuthAPIKey      = "api_key"
	AuthEnvVar      = "env_var"
)

// ServerConfig is one normalized MCP server definition.
type ServerConfig struct {
	ID         string            `mapstructure:"-"`
	Transport  string            `mapstructure:"transport"`
	Command    []string          `mapstructure:"command"`
	Env        map[string]string `mapstructure:"env"`
	URL        string            `mapstructure:"url"`
	Auth       *AuthConfig       `mapstructure:"auth"`
	Tools      []string          `mapstructure:"tools"`
	Timeout    int               `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
}

// AuthConfig names the env vars holding credentials. The names are kept
// literal at registry time; secrets are resolved by the transport client.
type AuthConfig struct {
	Type            string   `mapstructure:"type"`
	TokenVar        string   `mapstructure:"token_var"`
	ClientIDEnv     string   `mapstructure:"client_id_env"`
	ClientSecretEnv string   `mapstructure:"client_secret_env"`
	Scopes          []string `mapstructure:"scopes"`
	TokenURL        string   `mapstructure:"token_url"`
}

func (c *ServerConfig) setDefaults() {
	if c.Transport == "" {
		if len(c.Command) > 0 {
			c.Transport = TransportStdio
		} else if c.URL != "" {
			c.Transport = TransportSSE
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Auth == nil {
		c.Auth = &AuthConfig{Type: AuthNone}
	}
}

func (c *ServerConfig) validate() error {
	switch c.Transport {
	case TransportStdio:
		if len(c.Command) == 0 {
			return fmt.Errorf("stdio transport requires a command")
		}
	case TransportSSE, TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("%s transport requires a url", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

var mcpEnvRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveEnvRef expands ${VAR} against the process environment. Unset
// variables stay literal so a missing secret is visible rather than silently
// blanked.
func resolveEnvRef(s string) string {
	return mcpEnvRef.ReplaceAllStringFunc(s, func(match string) string {
		name := mcpEnvRef.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// parseServersFile decodes a servers file (YAML or JSON; JSON is a YAML
// subset) accepting either `servers` or `mcpServers` as the root key.
func parseServersFile(data []byte) (map[string]ServerConfig, []error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, []error{fmt.Errorf("failed to parse servers file: %w", err)}
	}

	rawServers, ok := root["servers"].(map[string]any)
	if !ok {
		rawServers, ok = root["mcpServers"].(map[string]any)
	}
	if !ok {
		return nil, []error{fmt.Errorf("servers file needs a 'servers' or 'mcpServers' root key")}
	}

	servers := make(map[string]ServerConfig, len(rawServers))
	var skipped []error
	for id, rawEntry := range rawServers {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			skipped = append(skipped, fmt.Errorf("server %q: entry is not a mapping", id))
			continue
		}

		cfg, err := normalizeServerEntry(id, entry)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("server %q: %w", id, err))
			continue
		}
		servers[id] = *cfg
	}
	return servers, skipped
}

// normalizeServerEntry expands the shorthand forms into the canonical config:
// a scalar command plus args becomes a single argv list, and env references
// in the command and env values are resolved.
func normalizeServerEntry(id string, entry map[string]any) (*ServerConfig, error) {
	normalized := make(map[string]any, len(entry))
	for k, v := range entry {
		normalized[k] = v
	}

	// Shorthand: command as a string with a separate args list.
	if cmdStr, ok := normalized["command"].(string); ok {
		argv := []any{cmdStr}
		if args, ok := normalized["args"].([]any); ok {
			argv = append(argv, args...)
		}
		normalized["command"] = argv
		delete(normalized, "args")
	}

	var cfg ServerConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(normalized); err != nil {
		return nil, fmt.Errorf("invalid server entry: %w", err)
	}

	cfg.ID = id
	for i, arg := range cfg.Command {
		cfg.Command[i] = resolveEnvRef(arg)
	}
	for k, v := range cfg.Env {
		cfg.Env[k] = resolveEnvRef(v)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
