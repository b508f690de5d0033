package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentship/agentship/pkg/config"
)

func TestParseOutput_NoSchema(t *testing.T) {
	out, err := ParseOutput("plain answer", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", out)
}

func TestParseOutput_JSON(t *testing.T) {
	schema := &config.Schema{
		Type: "object",
		Properties: map[string]config.SchemaField{
			"answer": {Type: "string"},
			"score":  {Type: "number"},
		},
	}

	out, err := ParseOutput(`{"answer": "yes", "score": 0.9}`, schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "yes", "score": 0.9}, out)
}

func TestParseOutput_MissingRequiredField(t *testing.T) {
	schema := &config.Schema{
		Type: "object",
		Properties: map[string]config.SchemaField{
			"answer": {Type: "string"},
			"score":  {Type: "number"},
		},
		Required: []string{"answer", "score"},
	}

	_, err := ParseOutput(`{"answer": "yes"}`, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score")
}

func TestParseOutput_FencedJSON(t *testing.T) {
	schema := &config.Schema{
		Type:       "object",
		Properties: map[string]config.SchemaField{"answer": {Type: "string"}},
	}

	content := "```json\n{\"answer\": \"yes\"}\n```"
	out, err := ParseOutput(content, schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "yes"}, out)
}

func TestParseOutput_SingleFieldFallback(t *testing.T) {
	schema := &config.Schema{
		Type:       "object",
		Properties: map[string]config.SchemaField{"summary": {Type: "string"}},
	}

	out, err := ParseOutput("just prose, not JSON", schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"summary": "just prose, not JSON"}, out)
}

func TestParseOutput_MultiFieldNonJSONFails(t *testing.T) {
	schema := &config.Schema{
		Type: "object",
		Properties: map[string]config.SchemaField{
			"a": {Type: "string"},
			"b": {Type: "string"},
		},
	}

	_, err := ParseOutput("not json at all", schema)
	assert.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"language tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence on one line", "```{\"a\":1}```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}
