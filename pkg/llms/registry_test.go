package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateFromConfigReuses(t *testing.T) {
	r := NewRegistry()
	cfg := &ProviderConfig{Type: "ollama", Model: "llama3"}

	first, err := r.CreateFromConfig("ollama/llama3", cfg)
	require.NoError(t, err)

	second, err := r.CreateFromConfig("ollama/llama3", cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistry_UnsupportedType(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig("bad", &ProviderConfig{Type: "cohere", Model: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM type")
}

func TestRegistry_GetProvider(t *testing.T) {
	r := NewRegistry()
	provider, err := r.CreateFromConfig("ollama/llama3", &ProviderConfig{Type: "ollama", Model: "llama3"})
	require.NoError(t, err)

	got, err := r.GetProvider("ollama/llama3")
	require.NoError(t, err)
	assert.Same(t, provider, got)

	_, err = r.GetProvider("missing")
	assert.Error(t, err)
}

func TestRegisterProvider_Validation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.RegisterProvider("", nil))
	assert.Error(t, r.RegisterProvider("x", nil))
}
