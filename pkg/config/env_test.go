package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_HOST", "example.com")
	t.Setenv("TEST_PORT", "8080")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"braced", "https://${TEST_HOST}/api", "https://example.com/api"},
		{"simple", "host=$TEST_HOST", "host=example.com"},
		{"default used", "${MISSING_VAR:-fallback}", "fallback"},
		{"default ignored when set", "${TEST_HOST:-fallback}", "example.com"},
		{"unset expands empty", "key=${MISSING_VAR}", "key="},
		{"no reference", "plain text", "plain text"},
		{"multiple", "$TEST_HOST:${TEST_PORT}", "example.com:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandEnvVars(tt.in))
		})
	}
}

func TestExpandEnvVarsInData_RetypesValues(t *testing.T) {
	t.Setenv("TEST_PORT", "8080")
	t.Setenv("TEST_ENABLED", "true")
	t.Setenv("TEST_RATIO", "0.5")

	data := map[string]any{
		"port":    "${TEST_PORT}",
		"enabled": "${TEST_ENABLED}",
		"ratio":   "${TEST_RATIO}",
		"name":    "static",
		"nested": []any{
			map[string]any{"port": "${TEST_PORT}"},
		},
	}

	result := ExpandEnvVarsInData(data).(map[string]any)

	assert.Equal(t, 8080, result["port"])
	assert.Equal(t, true, result["enabled"])
	assert.Equal(t, 0.5, result["ratio"])
	assert.Equal(t, "static", result["name"])

	nested := result["nested"].([]any)[0].(map[string]any)
	assert.Equal(t, 8080, nested["port"])
}

func TestGetProviderAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")

	assert.Equal(t, "sk-test", GetProviderAPIKey("openai"))
	assert.Equal(t, "ak-test", GetProviderAPIKey("anthropic"))
	assert.Empty(t, GetProviderAPIKey("ollama"))
}
