package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentship/agentship/pkg/httpclient"
	"github.com/agentship/agentship/pkg/protocol"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server via /api/chat. Responses
// stream as JSON lines rather than SSE. Ollama does not assign tool call
// ids, so they are generated here.
type OllamaProvider struct {
	config     *ProviderConfig
	httpClient *httpclient.Client
}

func NewOllamaProvider(cfg *ProviderConfig) (*OllamaProvider, error) {
	cfg.setDefaults()
	if cfg.Host == "" {
		cfg.Host = defaultOllamaHost
	}

	return &OllamaProvider{
		config:     cfg,
		httpClient: newProviderHTTPClient(cfg.Timeout),
	}, nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaResponse struct {
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	request := p.buildRequest(messages, false, tools)

	resp, err := p.do(ctx, request)
	if err != nil {
		return "", nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", nil, 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if response.Error != "" {
		return "", nil, 0, fmt.Errorf("ollama API error: %s", response.Error)
	}

	toolCalls := convertOllamaToolCalls(response.Message.ToolCalls)
	return response.Message.Content, toolCalls, response.EvalCount, nil
}

func (p *OllamaProvider) GenerateStreaming(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, tools)

	outputCh := make(chan StreamChunk, 100)
	go func() {
		defer close(outputCh)
		if err := p.makeStreamingRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Type: ChunkTypeError, Error: err}
		}
	}()
	return outputCh, nil
}

func (p *OllamaProvider) ModelName() string { return p.config.Model }

func (p *OllamaProvider) Close() error { return nil }

func (p *OllamaProvider) buildRequest(messages []protocol.Message, stream bool, tools []ToolDefinition) ollamaRequest {
	ollamaMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		m := ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Args,
				},
			})
		}
		ollamaMessages = append(ollamaMessages, m)
	}

	request := ollamaRequest{
		Model:    p.config.Model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.MaxTokens,
		},
	}

	if len(tools) > 0 {
		request.Tools = make([]ollamaTool, len(tools))
		for i, tool := range tools {
			request.Tools[i] = ollamaTool{
				Type:     "function",
				Function: ollamaToolFunction(tool),
			}
		}
	}

	return request
}

func convertOllamaToolCalls(calls []ollamaToolCall) []*protocol.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]*protocol.ToolCall, len(calls))
	for i, tc := range calls {
		result[i] = &protocol.ToolCall{
			ID:   "call_" + uuid.NewString(),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		}
	}
	return result
}

func (p *OllamaProvider) do(ctx context.Context, request ollamaRequest) (*http.Response, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/api/chat", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if rlErr := rateLimitErrorFrom("ollama", resp, err); rlErr != nil {
		resp.Body.Close()
		return nil, rlErr
	}
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

func (p *OllamaProvider) makeStreamingRequest(ctx context.Context, request ollamaRequest, outputCh chan<- StreamChunk) error {
	resp, err := p.do(ctx, request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	totalTokens := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var response ollamaResponse
		if err := json.Unmarshal(line, &response); err != nil {
			continue
		}
		if response.Error != "" {
			return fmt.Errorf("ollama API error: %s", response.Error)
		}

		if response.Message.Content != "" {
			outputCh <- StreamChunk{Type: ChunkTypeText, Text: response.Message.Content}
		}
		for _, tc := range convertOllamaToolCalls(response.Message.ToolCalls) {
			outputCh <- StreamChunk{Type: ChunkTypeToolCall, ToolCall: tc}
		}

		if response.Done {
			totalTokens = response.EvalCount
			break
		}
	}

	outputCh <- StreamChunk{Type: ChunkTypeDone, Tokens: totalTokens}
	return nil
}
