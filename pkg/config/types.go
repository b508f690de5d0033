// Package config defines agent configuration types and their YAML loader.
//
// Configs follow the SetDefaults/Validate convention: every struct knows how
// to fill its zero values and check its own invariants. Validation failures
// are fatal at load time.
package config

import (
	"fmt"
	"strings"
)

// Engine selector tags.
const (
	EngineNative       = "native"
	EngineOrchestrated = "orchestrated"
)

// Memory backend selectors.
const (
	MemoryBackendInMemory = "in_memory"
	MemoryBackendDatabase = "database"
	MemoryBackendVertexAI = "vertexai"
)

// Streaming modes.
const (
	StreamingNone       = "none"
	StreamingEventBased = "event_based"
	StreamingTokenBased = "token_based"
)

// DefaultMaxToolRounds bounds the tool loop when the config does not say.
const DefaultMaxToolRounds = 10

// AgentConfig is the immutable configuration of one agent.
type AgentConfig struct {
	AgentName           string            `yaml:"agent_name"`
	Description         string            `yaml:"description,omitempty"`
	LLMProviderName     string            `yaml:"llm_provider_name"`
	LLMModel            string            `yaml:"llm_model"`
	Temperature         float64           `yaml:"temperature,omitempty"`
	InstructionTemplate string            `yaml:"instruction_template"`
	ExecutionEngine     string            `yaml:"execution_engine,omitempty"`
	Tools               []ToolDeclaration `yaml:"tools,omitempty"`
	MCPServers          []MCPServerRef    `yaml:"mcp_servers,omitempty"`
	Memory              MemoryConfig      `yaml:"memory,omitempty"`
	StreamingMode       string            `yaml:"streaming_mode,omitempty"`
	MaxToolRounds       int               `yaml:"max_tool_rounds,omitempty"`
	Observability       string            `yaml:"observability_provider,omitempty"`

	InputSchema  *Schema `yaml:"input_schema,omitempty"`
	OutputSchema *Schema `yaml:"output_schema,omitempty"`

	// HistoryTokenBudget bounds the assembled conversation history; 0 means
	// no trimming.
	HistoryTokenBudget int `yaml:"history_token_budget,omitempty"`
}

// MemoryConfig selects the session backend.
type MemoryConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Backend string `yaml:"backend,omitempty"`
}

// Schema is a minimal structural description of an input or output value.
type Schema struct {
	Type       string                 `yaml:"type,omitempty"`
	Properties map[string]SchemaField `yaml:"properties,omitempty"`
	Required   []string               `yaml:"required,omitempty"`
}

// SchemaField describes one schema property.
type SchemaField struct {
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// FieldNames returns the property names of an object schema.
func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	return names
}

// Tool declaration kinds.
const (
	ToolKindFunction = "function"
	ToolKindAgent    = "agent"
	ToolKindMCPRef   = "mcp_ref"
)

// ToolDeclaration is the uniform tool entry of an agent config. Exactly one
// of Function, Agent or Server is meaningful depending on Type.
type ToolDeclaration struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`

	// Function names a registered callable (function kind).
	Function string `yaml:"function,omitempty"`

	// Agent names a registered sub-agent, resolved lazily (agent kind).
	Agent string `yaml:"agent,omitempty"`

	// Server references an MCP registry id (mcp_ref kind); Tools optionally
	// restricts the exposed tool names.
	Server string   `yaml:"server,omitempty"`
	Tools  []string `yaml:"tools,omitempty"`
}

func (t *ToolDeclaration) Validate() error {
	switch t.Type {
	case ToolKindFunction:
		if t.Function == "" {
			return fmt.Errorf("tool %q: function name is required", t.ID)
		}
	case ToolKindAgent:
		if t.Agent == "" {
			return fmt.Errorf("tool %q: agent name is required", t.ID)
		}
	case ToolKindMCPRef:
		if t.Server == "" {
			return fmt.Errorf("tool %q: server id is required", t.ID)
		}
	default:
		return fmt.Errorf("tool %q: unknown type %q (supported: function, agent, mcp_ref)", t.ID, t.Type)
	}
	return nil
}

// MCPServerRef references an MCP registry entry from an agent config,
// either as a bare id or with per-agent overrides.
type MCPServerRef struct {
	ID      string            `yaml:"id"`
	Tools   []string          `yaml:"tools,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout int               `yaml:"timeout,omitempty"`
}

// UnmarshalYAML accepts both the scalar shorthand ("postgres") and the
// full mapping form.
func (r *MCPServerRef) UnmarshalYAML(unmarshal func(any) error) error {
	var id string
	if err := unmarshal(&id); err == nil {
		r.ID = id
		return nil
	}

	type rawRef MCPServerRef
	var raw rawRef
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*r = MCPServerRef(raw)
	return nil
}

// providerModelPrefixes is the allowed model set per provider. An entry of
// "*" accepts any model name (self-hosted providers).
var providerModelPrefixes = map[string][]string{
	"openai":    {"gpt-", "o1", "o3", "o4"},
	"anthropic": {"claude-"},
	"ollama":    {"*"},
}

// SetDefaults fills zero values.
func (c *AgentConfig) SetDefaults() {
	if c.ExecutionEngine == "" {
		c.ExecutionEngine = EngineNative
	}
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.StreamingMode == "" {
		c.StreamingMode = StreamingTokenBased
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = MemoryBackendInMemory
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
}

// Validate checks the config's invariants.
func (c *AgentConfig) Validate() error {
	if c.AgentName == "" {
		return fmt.Errorf("agent_name is required")
	}
	if c.LLMProviderName == "" || c.LLMModel == "" {
		return fmt.Errorf("agent %q: llm_provider_name and llm_model are required", c.AgentName)
	}

	prefixes, known := providerModelPrefixes[c.LLMProviderName]
	if !known {
		return fmt.Errorf("agent %q: unsupported provider %q (supported: openai, anthropic, ollama)",
			c.AgentName, c.LLMProviderName)
	}
	if !modelAllowed(c.LLMModel, prefixes) {
		return fmt.Errorf("agent %q: model %q is not in provider %q's allowed model set",
			c.AgentName, c.LLMModel, c.LLMProviderName)
	}

	switch c.ExecutionEngine {
	case EngineNative, EngineOrchestrated:
	default:
		return fmt.Errorf("agent %q: unknown execution_engine %q", c.AgentName, c.ExecutionEngine)
	}

	if c.Memory.Backend == MemoryBackendVertexAI && c.ExecutionEngine != EngineOrchestrated {
		return fmt.Errorf("agent %q: vertexai session backend requires the orchestrated engine", c.AgentName)
	}

	switch c.StreamingMode {
	case StreamingNone, StreamingEventBased, StreamingTokenBased:
	default:
		return fmt.Errorf("agent %q: unknown streaming_mode %q", c.AgentName, c.StreamingMode)
	}

	for i := range c.Tools {
		if err := c.Tools[i].Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", c.AgentName, err)
		}
	}
	for _, ref := range c.MCPServers {
		if ref.ID == "" {
			return fmt.Errorf("agent %q: mcp_servers entries need an id", c.AgentName)
		}
	}
	return nil
}

func modelAllowed(model string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "*" || strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
