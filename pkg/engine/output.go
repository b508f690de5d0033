package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentship/agentship/pkg/config"
)

// ParseOutput converts the final LLM content into the agent's declared
// output shape. Markdown code fences are stripped first; then JSON is
// attempted; a schema with exactly one field accepts the raw content as
// that field's value.
func ParseOutput(content string, schema *config.Schema) (any, error) {
	if schema == nil {
		return content, nil
	}

	stripped := StripCodeFences(content)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(stripped), &parsed); err == nil {
		for _, field := range schema.Required {
			if _, present := parsed[field]; !present {
				return nil, fmt.Errorf("output does not conform to the declared schema: missing required field %q", field)
			}
		}
		return parsed, nil
	}

	if fields := schema.FieldNames(); len(fields) == 1 {
		return map[string]any{fields[0]: stripped}, nil
	}

	return nil, fmt.Errorf("output does not conform to the declared schema: not valid JSON and schema has multiple fields")
}

// StripCodeFences removes a surrounding Markdown code fence, with or
// without a language tag.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line.
		firstLine := strings.TrimSpace(trimmed[:idx])
		if !strings.ContainsAny(firstLine, "{[\"") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
