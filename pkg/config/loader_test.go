package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalAgentYAML = `
agents:
  - agent_name: assistant
    llm_provider_name: openai
    llm_model: gpt-4o
    instruction_template: "You are a helpful assistant."
`

func TestLoadFromBytes_Minimal(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(minimalAgentYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 1)

	a := cfg.Agents[0]
	assert.Equal(t, "assistant", a.AgentName)
	assert.Equal(t, EngineNative, a.ExecutionEngine)
	assert.Equal(t, DefaultMaxToolRounds, a.MaxToolRounds)
	assert.Equal(t, StreamingTokenBased, a.StreamingMode)
	assert.Equal(t, MemoryBackendInMemory, a.Memory.Backend)
	assert.InDelta(t, 0.7, a.Temperature, 0.001)
}

func TestLoadFromBytes_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_MODEL", "gpt-4o-mini")

	yaml := `
agents:
  - agent_name: assistant
    llm_provider_name: openai
    llm_model: ${TEST_MODEL}
    instruction_template: "hi"
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Agents[0].LLMModel)
}

func TestLoadFromBytes_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing agent name",
			yaml: `
agents:
  - llm_provider_name: openai
    llm_model: gpt-4o
`,
			wantErr: "agent_name is required",
		},
		{
			name: "unsupported provider",
			yaml: `
agents:
  - agent_name: a
    llm_provider_name: cohere
    llm_model: command-r
`,
			wantErr: "unsupported provider",
		},
		{
			name: "model outside provider allow set",
			yaml: `
agents:
  - agent_name: a
    llm_provider_name: anthropic
    llm_model: gpt-4o
`,
			wantErr: "allowed model set",
		},
		{
			name: "vertexai backend with native engine",
			yaml: `
agents:
  - agent_name: a
    llm_provider_name: openai
    llm_model: gpt-4o
    execution_engine: native
    memory:
      backend: vertexai
`,
			wantErr: "requires the orchestrated engine",
		},
		{
			name: "duplicate agent names",
			yaml: `
agents:
  - agent_name: a
    llm_provider_name: openai
    llm_model: gpt-4o
  - agent_name: a
    llm_provider_name: openai
    llm_model: gpt-4o
`,
			wantErr: "duplicate agent name",
		},
		{
			name: "unknown tool type",
			yaml: `
agents:
  - agent_name: a
    llm_provider_name: openai
    llm_model: gpt-4o
    tools:
      - id: t1
        type: webhook
`,
			wantErr: "unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromBytes_OllamaAcceptsAnyModel(t *testing.T) {
	yaml := `
agents:
  - agent_name: local
    llm_provider_name: ollama
    llm_model: qwen3:8b
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b", cfg.Agents[0].LLMModel)
}

func TestMCPServerRef_ScalarAndMapping(t *testing.T) {
	yaml := `
agents:
  - agent_name: a
    llm_provider_name: openai
    llm_model: gpt-4o
    mcp_servers:
      - github
      - id: postgres
        tools: [query]
        timeout: 60
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)

	refs := cfg.Agents[0].MCPServers
	require.Len(t, refs, 2)
	assert.Equal(t, "github", refs[0].ID)
	assert.Empty(t, refs[0].Tools)
	assert.Equal(t, "postgres", refs[1].ID)
	assert.Equal(t, []string{"query"}, refs[1].Tools)
	assert.Equal(t, 60, refs[1].Timeout)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()

	first := `
agents:
  - agent_name: alpha
    llm_provider_name: openai
    llm_model: gpt-4o
`
	second := `
agents:
  - agent_name: beta
    llm_provider_name: anthropic
    llm_model: claude-sonnet-4-20250514
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-alpha.yaml"), []byte(first), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-beta.yml"), []byte(second), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "alpha", cfg.Agents[0].AgentName)
	assert.Equal(t, "beta", cfg.Agents[1].AgentName)

	beta, ok := cfg.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "anthropic", beta.LLMProviderName)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load("/nonexistent/agents.yaml")
	assert.Error(t, err)
}

func TestLoadFromBytes_InvalidYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("agents: [unclosed"))
	assert.Error(t, err)
}
