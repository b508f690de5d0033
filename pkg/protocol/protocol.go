// Package protocol defines the wire-level types shared by engines, tools,
// LLM providers and the agent facade: conversation messages, tool calls,
// chat requests/responses and stream events.
package protocol

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []*ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set on tool-role messages carrying a result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall is an LLM's request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ArgsJSON returns the call arguments serialized as JSON, "{}" for empty.
func (tc *ToolCall) ArgsJSON() string {
	if len(tc.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(tc.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Feature is a free-form name/value pair attached to a chat request.
type Feature struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Artifact references an input artifact attached to a chat request.
type Artifact struct {
	Name     string `json:"name"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ChatRequest is the boundary input of an agent interaction.
// Query is either a plain string or an object matching the agent's
// declared input schema.
type ChatRequest struct {
	AgentName string     `json:"agent_name"`
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Sender    string     `json:"sender,omitempty"`
	Query     any        `json:"query"`
	Features  []Feature  `json:"features,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// ChatResponse is the boundary output of an agent interaction.
type ChatResponse struct {
	AgentName string `json:"agent_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
	Response  any    `json:"agent_response,omitempty"`
	Error     string `json:"error,omitempty"`
}
