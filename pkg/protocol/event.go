package protocol

import "time"

// EventType tags a StreamEvent.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventContent    EventType = "content"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventSession    EventType = "session"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// maxToolResultLen bounds the result text carried on tool_result events.
// The full result still goes into the conversation history; the event is
// for display only.
const maxToolResultLen = 500

// StreamEvent is one element of an agent's output stream.
//
// Sequence contract: session → thinking → (content|tool_call|tool_result)*
// → done, or … → error → done. A tool_result always follows its tool_call.
type StreamEvent struct {
	Type      EventType `json:"type"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`

	// Text carries the delta for content events and the message for
	// thinking events.
	Text string `json:"text,omitempty"`

	// ToolName and Args are set on tool_call events; ToolName and Result
	// on tool_result events.
	ToolName string         `json:"tool_name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	Error string `json:"error,omitempty"`
}

func newEvent(agent string, typ EventType) StreamEvent {
	return StreamEvent{Type: typ, Agent: agent, Timestamp: time.Now().UTC()}
}

// NewSessionEvent announces the session the stream belongs to.
func NewSessionEvent(agent, userID, sessionID string) StreamEvent {
	ev := newEvent(agent, EventSession)
	ev.UserID = userID
	ev.SessionID = sessionID
	return ev
}

// NewThinkingEvent signals that the engine started working on the request.
func NewThinkingEvent(agent string) StreamEvent {
	ev := newEvent(agent, EventThinking)
	ev.Text = "Thinking..."
	return ev
}

// NewContentEvent carries one text delta.
func NewContentEvent(agent, delta string) StreamEvent {
	ev := newEvent(agent, EventContent)
	ev.Text = delta
	return ev
}

// NewToolCallEvent announces a tool invocation with its final arguments.
func NewToolCallEvent(agent, tool string, args map[string]any) StreamEvent {
	ev := newEvent(agent, EventToolCall)
	ev.ToolName = tool
	ev.Args = args
	return ev
}

// NewToolResultEvent carries a truncated stringification of a tool result.
func NewToolResultEvent(agent, tool, result string) StreamEvent {
	ev := newEvent(agent, EventToolResult)
	ev.ToolName = tool
	ev.Result = Truncate(result, maxToolResultLen)
	return ev
}

// NewDoneEvent terminates the stream.
func NewDoneEvent(agent string) StreamEvent {
	return newEvent(agent, EventDone)
}

// NewErrorEvent reports a mid-stream failure. It must be followed by done.
func NewErrorEvent(agent string, err error) StreamEvent {
	ev := newEvent(agent, EventError)
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Truncate shortens s to at most n runes, appending an ellipsis marker.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
