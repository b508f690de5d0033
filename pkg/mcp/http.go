package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentship/agentship/pkg/httpclient"
)

// HTTPClient speaks MCP JSON-RPC over HTTP. Responses may arrive as plain
// JSON or as an SSE framing whose data: lines carry the JSON envelope;
// both are accepted. Requests carry a bearer token resolved per auth type.
type HTTPClient struct {
	cfg        *ServerConfig
	httpClient *httpclient.Client
	tokens     TokenStore

	requestID atomic.Int64

	mu        sync.Mutex
	sessionID string
	tools     []ToolInfo
}

func NewHTTPClient(cfg *ServerConfig, tokens TokenStore) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(2*time.Second),
		),
		tokens: tokens,
	}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.Lock()
	if c.tools != nil {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	c.mu.Unlock()

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP list error: %s", resp.Error.Message)
	}

	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unexpected result from tools/list: %w", err)
	}

	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return tools, nil
}

func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("tool error: %s", resp.Error.Message)
	}

	var result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return string(resp.Result), nil
	}

	var texts []string
	for _, content := range result.Content {
		if content.Type == "text" {
			texts = append(texts, content.Text)
		}
	}

	if result.IsError {
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return "", fmt.Errorf("tool error: %s", msg)
	}

	switch len(texts) {
	case 0:
		return "", nil
	case 1:
		return texts[0], nil
	default:
		encoded, err := json.Marshal(texts)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool result: %w", err)
		}
		return string(encoded), nil
	}
}

func (c *HTTPClient) Close() error { return nil }

// call sends one JSON-RPC request and decodes the response, whichever
// framing the server chose.
func (c *HTTPClient) call(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	c.mu.Lock()
	if c.sessionID != "" {
		httpReq.Header.Set("mcp-session-id", c.sessionID)
	}
	c.mu.Unlock()

	httpResp, err := c.httpClient.Do(httpReq)
	if httpResp != nil && httpResp.StatusCode == http.StatusUnauthorized {
		httpResp.Body.Close()
		return nil, &ReconnectError{
			ServerID: c.cfg.ID,
			Reason:   "server rejected credentials (401)",
			Err:      err,
		}
	}
	if err != nil {
		// Retry exhaustion hands back the last response alongside the error.
		if httpResp != nil {
			httpResp.Body.Close()
		}
		slog.Debug("MCP HTTP request failed",
			"server", c.cfg.ID,
			"method", method,
			"error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		c.mu.Lock()
		c.sessionID = newSessionID
		c.mu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(httpResp.Body)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC envelope from an SSE
// body. Events end at a blank line; data: lines within one event are
// concatenated.
func readSSEResponse(body io.Reader) (*jsonRPCResponse, error) {
	reader := bufio.NewReader(body)
	var currentData strings.Builder

	flush := func() *jsonRPCResponse {
		if currentData.Len() == 0 {
			return nil
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal([]byte(currentData.String()), &resp); err == nil {
			return &resp
		}
		currentData.Reset()
		return nil
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read SSE response: %w", err)
		}

		lineStr := strings.TrimSpace(line)
		if lineStr == "" {
			if resp := flush(); resp != nil {
				return resp, nil
			}
			continue
		}
		if strings.HasPrefix(lineStr, "data:") {
			currentData.WriteString(strings.TrimSpace(strings.TrimPrefix(lineStr, "data:")))
		}
	}

	if resp := flush(); resp != nil {
		return resp, nil
	}
	return nil, fmt.Errorf("SSE stream ended without complete message")
}

// resolveToken produces the bearer token for this request. Static auth
// types read the named env var at call time; oauth consults the token
// store keyed by (user_id, server_id), refreshing expired tokens when a
// refresh token and token URL are available.
func (c *HTTPClient) resolveToken(ctx context.Context) (string, error) {
	auth := c.cfg.Auth
	if auth == nil || auth.Type == AuthNone {
		return "", nil
	}

	switch auth.Type {
	case AuthBearerToken, AuthAPIKey, AuthEnvVar:
		return os.Getenv(auth.TokenVar), nil

	case AuthOAuth:
		userID := UserIDFrom(ctx)
		if c.tokens == nil {
			return "", &ReconnectError{ServerID: c.cfg.ID, Reason: "no token store configured"}
		}
		token, err := c.tokens.Get(ctx, userID, c.cfg.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load token: %w", err)
		}
		if token == nil {
			return "", &ReconnectError{ServerID: c.cfg.ID, Reason: "no stored token for user"}
		}
		if !token.Expired() {
			return token.AccessToken, nil
		}
		if token.RefreshToken == "" || auth.TokenURL == "" {
			return "", &ReconnectError{ServerID: c.cfg.ID, Reason: "token expired and no refresh path"}
		}

		refreshed, err := c.refreshToken(ctx, token)
		if err != nil {
			return "", &ReconnectError{ServerID: c.cfg.ID, Reason: "token refresh failed", Err: err}
		}
		if err := c.tokens.Put(ctx, userID, c.cfg.ID, refreshed); err != nil {
			slog.Warn("failed to persist refreshed token", "server", c.cfg.ID, "error", err)
		}
		return refreshed.AccessToken, nil

	default:
		return "", fmt.Errorf("unknown auth type %q", auth.Type)
	}
}

// refreshToken performs the OAuth refresh grant against the server's
// token endpoint.
func (c *HTTPClient) refreshToken(ctx context.Context, token *Token) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	if c.cfg.Auth.ClientIDEnv != "" {
		form.Set("client_id", os.Getenv(c.cfg.Auth.ClientIDEnv))
	}
	if c.cfg.Auth.ClientSecretEnv != "" {
		form.Set("client_secret", os.Getenv(c.cfg.Auth.ClientSecretEnv))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Auth.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var grant struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	refreshed := &Token{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if grant.ExpiresIn > 0 {
		refreshed.Expiry = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	} else if exp := TokenExpiry(grant.AccessToken); !exp.IsZero() {
		refreshed.Expiry = exp
	}

	slog.Info("refreshed OAuth token", "server", c.cfg.ID)
	return refreshed, nil
}
