// Package engine defines the execution engine contract shared by the
// native tool-loop engine and the orchestrated runner-backed engine,
// plus the middleware wrapper and output parsing.
package engine

import (
	"context"

	"github.com/agentship/agentship/pkg/protocol"
)

// Capabilities describes what an engine supports. Served to clients as
// part of agent discovery.
type Capabilities struct {
	SupportedProviders    []string `json:"supported_providers"`
	SupportsSSEStreaming  bool     `json:"supports_sse_streaming"`
	SupportsToolCalling   bool     `json:"supports_tool_calling"`
	SupportsBidiStreaming bool     `json:"supports_bidi_streaming"`
	SupportsMultimodal    bool     `json:"supports_multimodal"`
	Notes                 string   `json:"notes,omitempty"`
}

// Engine runs chat turns for one agent. Run returns the typed output per
// the agent's output schema; RunStream yields the normalized event
// sequence, always terminating with exactly one done event.
type Engine interface {
	EngineName() string
	Capabilities() Capabilities

	// Rebuild refreshes internal state (tools, prompt) after the agent's
	// config or tool servers changed.
	Rebuild(ctx context.Context) error

	Run(ctx context.Context, userID, sessionID string, input string) (any, error)
	RunStream(ctx context.Context, userID, sessionID string, input string) (<-chan protocol.StreamEvent, error)
}

// MaxToolRoundsMessage is returned when the tool loop exhausts its round
// budget without a final answer.
const MaxToolRoundsMessage = "Max tool iterations reached. Please try again."
