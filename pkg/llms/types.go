// Package llms provides the LLM provider abstraction and the raw-HTTP
// implementations for OpenAI, Anthropic and Ollama backends.
package llms

import (
	"context"
	"fmt"
	"time"

	"github.com/agentship/agentship/pkg/protocol"
)

// Stream chunk types emitted by GenerateStreaming.
const (
	ChunkTypeText     = "text"
	ChunkTypeThinking = "thinking"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeDone     = "done"
	ChunkTypeError    = "error"
)

// ToolDefinition is the provider-neutral description of a callable tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// StreamChunk is one unit of a provider's streaming response.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *protocol.ToolCall
	Tokens   int
	Error    error
}

// Provider is the contract all LLM backends implement. Generate returns the
// full text, any tool calls and the token usage; GenerateStreaming yields
// chunks and always terminates the channel.
type Provider interface {
	Generate(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error)
	GenerateStreaming(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (<-chan StreamChunk, error)
	ModelName() string
	Close() error
}

// ProviderConfig configures one provider instance.
type ProviderConfig struct {
	Type        string
	Model       string
	APIKey      string
	Host        string
	Temperature float64
	MaxTokens   int
	Timeout     int

	// StructuredOutput asks the backend for a JSON response format, for
	// agents that declare an output schema. Only OpenAI honors it.
	StructuredOutput bool
}

func (c *ProviderConfig) setDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
}

// RateLimitError reports an HTTP 429 from a provider. Providers never retry
// rate limits themselves; the engine owns that policy.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (retry after %v)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

func (e *RateLimitError) Unwrap() error { return e.Err }
