// Package runner defines the delegation contract the orchestrated engine
// builds on, plus a local in-process implementation.
package runner

import (
	"context"

	"github.com/agentship/agentship/pkg/protocol"
)

// Event kinds emitted by a runner.
const (
	EventText             = "text"
	EventFunctionCall     = "function_call"
	EventFunctionResponse = "function_response"
	EventDone             = "done"
	EventError            = "error"
)

// Event is one unit of a runner's stream. The orchestrated engine maps
// these onto the normalized stream protocol.
type Event struct {
	Kind     string
	Text     string
	Call     *protocol.ToolCall
	Response *ToolResponse
	Err      error
}

// ToolResponse carries a completed tool invocation.
type ToolResponse struct {
	CallID string
	Name   string
	Result string
}

// Runner owns the conversation loop and the session history backing it.
// The engine only ensures the session exists before submitting a message.
type Runner interface {
	EnsureSession(ctx context.Context, userID, sessionID string) error
	Run(ctx context.Context, userID, sessionID string, message string) (string, error)
	RunStream(ctx context.Context, userID, sessionID string, message string) (<-chan Event, error)
	Close() error
}
