package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentship/agentship/pkg/config"
)

func TestPromptBuilder_NoToolsPassesInstructionThrough(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{
		AgentName:           "assistant",
		InstructionTemplate: "You answer tersely.",
	}

	prompt, err := builder.Build(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "You answer tersely.", prompt)
}

func TestPromptBuilder_DefaultInstruction(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{AgentName: "assistant"}

	prompt, err := builder.Build(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "assistant")
}

func TestPromptBuilder_TemplateRendering(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{
		AgentName:           "researcher",
		Description:         "finds sources",
		InstructionTemplate: "You are {{.AgentName}}. Your job: {{.Description}}.",
	}

	prompt, err := builder.Build(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "You are researcher. Your job: finds sources.", prompt)
}

func TestPromptBuilder_InvalidTemplate(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{
		AgentName:           "a",
		InstructionTemplate: "broken {{.Unclosed",
	}

	_, err := builder.Build(cfg, nil)
	assert.Error(t, err)
}

func TestPromptBuilder_ToolSection(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{
		AgentName:           "assistant",
		InstructionTemplate: "Base instruction.",
	}

	tool, err := NewFunctionTool("get_weather", "Looks up the weather.",
		func(_ context.Context, args weatherArgs) (string, error) { return "", nil })
	require.NoError(t, err)

	prompt, err := builder.Build(cfg, []Tool{tool})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Base instruction.")
	assert.Contains(t, prompt, "## Available Tools")
	assert.Contains(t, prompt, "### get_weather")
	assert.Contains(t, prompt, "Looks up the weather.")
	assert.Contains(t, prompt, "user_id")
}

func TestPromptBuilder_ToolParametersAndExample(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{AgentName: "assistant"}

	tool, err := NewFunctionTool("get_weather", "Looks up the weather.",
		func(_ context.Context, args weatherArgs) (string, error) { return "", nil })
	require.NoError(t, err)

	prompt, err := builder.Build(cfg, []Tool{tool})
	require.NoError(t, err)

	// Each parameter appears with its type, requiredness and description.
	assert.Contains(t, prompt, "- city (string, required): City to look up")
	assert.Contains(t, prompt, "- days (integer, optional)")

	// A JSON example invocation with placeholder values.
	assert.Contains(t, prompt, `"name":"get_weather"`)
	assert.Contains(t, prompt, `"city":"<city>"`)
}

func TestPromptBuilder_AgentToolSection(t *testing.T) {
	builder := NewPromptBuilder()
	cfg := &config.AgentConfig{AgentName: "assistant"}

	tool := NewAgentTool("researcher", "Finds sources.", nil)

	prompt, err := builder.Build(cfg, []Tool{tool})
	require.NoError(t, err)
	assert.Contains(t, prompt, "- query (string, required): The request to send to the agent.")
}
