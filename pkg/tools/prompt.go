package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/agentship/agentship/pkg/config"
)

// PromptBuilder renders an agent's system prompt: the configured
// instruction template plus a tool-usage section when tools exist. With no
// tools the instruction passes through untouched.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

type promptData struct {
	AgentName   string
	Description string
}

// Build renders the system prompt for one request.
func (b *PromptBuilder) Build(cfg *config.AgentConfig, tools []Tool) (string, error) {
	instruction, err := b.renderInstruction(cfg)
	if err != nil {
		return "", err
	}
	if len(tools) == 0 {
		return instruction, nil
	}

	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n## Available Tools\n\n")
	sb.WriteString("You can call the following tools. Use the exact argument names from each tool's schema.\n\n")
	for _, tool := range tools {
		writeToolSection(&sb, tool)
	}
	sb.WriteString("When a tool takes a user_id argument, pass the requesting user's actual id.\n")
	return sb.String(), nil
}

// toolParam is one parameter extracted from a tool's JSON schema.
type toolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

func writeToolSection(sb *strings.Builder, tool Tool) {
	fmt.Fprintf(sb, "### %s\n\n%s\n", tool.Name(), tool.Description())

	params := schemaParams(tool.Parameters())
	if len(params) > 0 {
		sb.WriteString("\nParameters:\n")
		for _, p := range params {
			requirement := "optional"
			if p.Required {
				requirement = "required"
			}
			if p.Description != "" {
				fmt.Fprintf(sb, "- %s (%s, %s): %s\n", p.Name, p.Type, requirement, p.Description)
			} else {
				fmt.Fprintf(sb, "- %s (%s, %s)\n", p.Name, p.Type, requirement)
			}
		}
	}

	fmt.Fprintf(sb, "\nExample: %s\n\n", exampleCall(tool.Name(), params))
}

// schemaParams flattens an object schema's properties, sorted by name.
// Required lists survive the JSON round-trip as []any or []string.
func schemaParams(schema map[string]any) []toolParam {
	properties, _ := schema["properties"].(map[string]any)
	if len(properties) == 0 {
		return nil
	}

	required := make(map[string]bool)
	switch list := schema["required"].(type) {
	case []any:
		for _, name := range list {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, name := range list {
			required[name] = true
		}
	}

	params := make([]toolParam, 0, len(properties))
	for name, raw := range properties {
		param := toolParam{Name: name, Type: "string", Required: required[name]}
		if field, ok := raw.(map[string]any); ok {
			if typ, ok := field["type"].(string); ok && typ != "" {
				param.Type = typ
			}
			param.Description, _ = field["description"].(string)
		}
		params = append(params, param)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// exampleCall renders a JSON invocation example with placeholder values.
func exampleCall(toolName string, params []toolParam) string {
	args := make(map[string]any, len(params))
	for _, p := range params {
		args[p.Name] = exampleValue(p)
	}
	encoded, err := json.Marshal(map[string]any{"name": toolName, "arguments": args})
	if err != nil {
		return fmt.Sprintf(`{"name": %q, "arguments": {}}`, toolName)
	}
	return string(encoded)
}

func exampleValue(p toolParam) any {
	switch p.Type {
	case "integer", "number":
		return 0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return "<" + p.Name + ">"
	}
}

func (b *PromptBuilder) renderInstruction(cfg *config.AgentConfig) (string, error) {
	if cfg.InstructionTemplate == "" {
		return fmt.Sprintf("You are %s, a helpful assistant.", cfg.AgentName), nil
	}
	if !strings.Contains(cfg.InstructionTemplate, "{{") {
		return cfg.InstructionTemplate, nil
	}

	tmpl, err := template.New("instruction").Parse(cfg.InstructionTemplate)
	if err != nil {
		return "", fmt.Errorf("agent %q: invalid instruction template: %w", cfg.AgentName, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, promptData{
		AgentName:   cfg.AgentName,
		Description: cfg.Description,
	}); err != nil {
		return "", fmt.Errorf("agent %q: failed to render instruction: %w", cfg.AgentName, err)
	}
	return sb.String(), nil
}
