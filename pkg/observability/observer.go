// Package observability reports engine activity to pluggable backends.
// The engines call through the Observer interface; tracing and metrics
// implementations live here behind it.
package observability

import (
	"context"
	"strings"
	"time"
)

// DecisionFinalResponse is the model decision reported when a round
// produced a final answer instead of tool calls.
const DecisionFinalResponse = "final response"

// DecisionFor renders the model's round decision for AfterModel.
func DecisionFor(toolNames []string) string {
	if len(toolNames) == 0 {
		return DecisionFinalResponse
	}
	return "call tools: " + strings.Join(toolNames, ", ")
}

// ToolCallInfo describes one tool invocation for observers. Args carries
// the serialized input the tool was called with.
type ToolCallInfo struct {
	Tool        string
	Args        string
	IsAgentTool bool
	ServerID    string
}

// Observer receives engine lifecycle callbacks in before/after pairs.
// Implementations must be safe for concurrent use.
type Observer interface {
	BeforeAgent(ctx context.Context, agent, userID, sessionID string) context.Context
	AfterAgent(ctx context.Context, agent string, duration time.Duration, err error)

	BeforeModel(ctx context.Context, agent, model string)
	// AfterModel reports one model round; decision is DecisionFinalResponse
	// or "call tools: X, Y".
	AfterModel(ctx context.Context, agent, model, decision string, duration time.Duration, tokens int, err error)

	BeforeTool(ctx context.Context, agent string, info ToolCallInfo)
	AfterTool(ctx context.Context, agent string, info ToolCallInfo, duration time.Duration, err error)
}

// ForProvider builds the observer an agent config names. Unknown names get
// the noop observer.
func ForProvider(name string) Observer {
	switch name {
	case "otel":
		return NewOTelObserver()
	case "prometheus":
		return NewMetricsObserver()
	default:
		return NoopObserver{}
	}
}

// NoopObserver ignores everything.
type NoopObserver struct{}

func (NoopObserver) BeforeAgent(ctx context.Context, _, _, _ string) context.Context { return ctx }
func (NoopObserver) AfterAgent(context.Context, string, time.Duration, error)        {}
func (NoopObserver) BeforeModel(context.Context, string, string)                     {}
func (NoopObserver) AfterModel(context.Context, string, string, string, time.Duration, int, error) {
}
func (NoopObserver) BeforeTool(context.Context, string, ToolCallInfo)                      {}
func (NoopObserver) AfterTool(context.Context, string, ToolCallInfo, time.Duration, error) {}
