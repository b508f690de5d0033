package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentship/agentship/pkg/protocol"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	provider, err := NewOpenAIProvider(&ProviderConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		APIKey: "test-key",
		Host:   srv.URL,
	})
	require.NoError(t, err)
	return provider, srv
}

func TestOpenAI_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(&ProviderConfig{Model: "gpt-4o"})
	assert.Error(t, err)
}

func TestOpenAI_Generate(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.False(t, req.Stream)

		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"total_tokens": 12}
		}`)
	})

	text, toolCalls, tokens, err := provider.Generate(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Empty(t, toolCalls)
	assert.Equal(t, 12, tokens)
}

func TestOpenAI_Generate_ToolCalls(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "get_weather", req.Tools[0].Function.Name)
		assert.Equal(t, "auto", req.ToolChoice)

		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_weather", "arguments": "{\"city\": \"Oslo\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"total_tokens": 20}
		}`)
	})

	tools := []ToolDefinition{{Name: "get_weather", Description: "Weather.", Parameters: map[string]any{"type": "object"}}}
	_, toolCalls, _, err := provider.Generate(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "weather in Oslo?"}}, tools)
	require.NoError(t, err)

	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_1", toolCalls[0].ID)
	assert.Equal(t, "get_weather", toolCalls[0].Name)
	assert.Equal(t, map[string]any{"city": "Oslo"}, toolCalls[0].Args)
}

func TestOpenAI_StructuredOutputRequestsJSONFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "{}"}}], "usage": {}}`)
	}))
	t.Cleanup(srv.Close)

	provider, err := NewOpenAIProvider(&ProviderConfig{
		Type:             "openai",
		Model:            "gpt-4o",
		APIKey:           "test-key",
		Host:             srv.URL,
		StructuredOutput: true,
	})
	require.NoError(t, err)

	_, _, _, err = provider.Generate(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
}

func TestOpenAI_Generate_BadToolArgsBecomeEmptyObject(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_weather", "arguments": "{\"city\": truncat"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"total_tokens": 5}
		}`)
	})

	_, toolCalls, _, err := provider.Generate(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	require.Len(t, toolCalls, 1)
	assert.Equal(t, "get_weather", toolCalls[0].Name)
	assert.Equal(t, map[string]any{}, toolCalls[0].Args)
}

func TestOpenAI_GenerateStreaming_BadToolArgsBecomeEmptyObject(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"{\\\"ci\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, err := provider.GenerateStreaming(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	var toolCalls []*protocol.ToolCall
	for chunk := range chunks {
		if chunk.Type == ChunkTypeToolCall {
			toolCalls = append(toolCalls, chunk.ToolCall)
		}
	}

	// The truncated argument fragment degrades to {} instead of dropping
	// the call.
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "get_weather", toolCalls[0].Name)
	assert.Equal(t, map[string]any{}, toolCalls[0].Args)
}

func TestOpenAI_Generate_RateLimited(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, _, _, err := provider.Generate(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "openai", rle.Provider)
	assert.Equal(t, float64(7), rle.RetryAfter.Seconds())
}

func TestOpenAI_Generate_APIError(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "bad model", "type": "invalid_request_error", "code": "model_not_found"}}`)
	})

	_, _, _, err := provider.Generate(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestOpenAI_GenerateStreaming(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, err := provider.GenerateStreaming(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	var text string
	var tokens int
	for chunk := range chunks {
		switch chunk.Type {
		case ChunkTypeText:
			text += chunk.Text
		case ChunkTypeDone:
			tokens = chunk.Tokens
		case ChunkTypeError:
			t.Fatalf("unexpected error chunk: %v", chunk.Error)
		}
	}
	assert.Equal(t, "hello", text)
	assert.Equal(t, 9, tokens)
}

func TestOpenAI_GenerateStreaming_ToolCallFragments(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Arguments arrive fragmented across deltas.
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"{\\\"ci\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"function\":{\"arguments\":\"ty\\\": \\\"Oslo\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, err := provider.GenerateStreaming(context.Background(),
		[]protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	var toolCalls []*protocol.ToolCall
	for chunk := range chunks {
		if chunk.Type == ChunkTypeToolCall {
			toolCalls = append(toolCalls, chunk.ToolCall)
		}
	}

	require.Len(t, toolCalls, 1)
	assert.Equal(t, "get_weather", toolCalls[0].Name)
	assert.Equal(t, map[string]any{"city": "Oslo"}, toolCalls[0].Args)
}

func TestBuildRequest_ToolMessages(t *testing.T) {
	provider, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {})

	messages := []protocol.Message{
		{Role: protocol.RoleAssistant, ToolCalls: []*protocol.ToolCall{
			{ID: "call_1", Name: "lookup", Args: map[string]any{"q": "x"}},
		}},
		{Role: protocol.RoleTool, Content: "result", ToolCallID: "call_1", ToolName: "lookup"},
	}

	req := provider.buildRequest(messages, false, nil)
	require.Len(t, req.Messages, 2)

	assistant := req.Messages[0]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	assert.JSONEq(t, `{"q":"x"}`, assistant.ToolCalls[0].Function.Arguments)

	toolMsg := req.Messages[1]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
}
