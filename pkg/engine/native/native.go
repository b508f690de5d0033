// Package native implements the self-contained tool-loop engine: per-round
// LLM calls, sequential tool execution, placeholder argument injection and
// rate-limit back-off, with history checkpointed through the session store.
package native

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/engine"
	"github.com/agentship/agentship/pkg/llms"
	"github.com/agentship/agentship/pkg/observability"
	"github.com/agentship/agentship/pkg/protocol"
	"github.com/agentship/agentship/pkg/session"
	"github.com/agentship/agentship/pkg/tools"
	"github.com/agentship/agentship/pkg/utils"
)

const (
	// rateLimitRetries is how many times a 429 is retried before the error
	// propagates. Back-off is linear: retryBaseDelay, 2x, 3x, 4x.
	rateLimitRetries = 4

	defaultRetryBaseDelay = 10 * time.Second
)

// Builder produces the engine's mutable parts: the provider connection,
// the resolved tool set and the rendered system prompt. Rebuild re-runs
// it after config changes.
type Builder func(ctx context.Context) (llms.Provider, []tools.Tool, string, error)

// Engine is the native tool-loop implementation.
type Engine struct {
	cfg      *config.AgentConfig
	store    session.Store
	observer observability.Observer
	build    Builder

	counterOnce sync.Once
	counter     *utils.TokenCounter

	retryBaseDelay time.Duration

	mu           sync.RWMutex
	provider     llms.Provider
	tools        []tools.Tool
	toolsByName  map[string]tools.Tool
	systemPrompt string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryBaseDelay overrides the rate-limit back-off unit. Tests use
// millisecond delays.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(e *Engine) { e.retryBaseDelay = d }
}

func New(ctx context.Context, cfg *config.AgentConfig, store session.Store, observer observability.Observer, build Builder, opts ...Option) (*Engine, error) {
	if observer == nil {
		observer = observability.NoopObserver{}
	}

	e := &Engine{
		cfg:            cfg,
		store:          store,
		observer:       observer,
		build:          build,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.Rebuild(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) EngineName() string { return config.EngineNative }

func (e *Engine) Capabilities() engine.Capabilities {
	return engine.Capabilities{
		SupportedProviders:    []string{"openai", "anthropic", "ollama"},
		SupportsSSEStreaming:  true,
		SupportsToolCalling:   true,
		SupportsBidiStreaming: false,
		SupportsMultimodal:    false,
		Notes:                 "self-contained tool loop",
	}
}

// Rebuild re-resolves the provider, tools and system prompt.
func (e *Engine) Rebuild(ctx context.Context) error {
	provider, toolset, systemPrompt, err := e.build(ctx)
	if err != nil {
		return fmt.Errorf("engine rebuild failed: %w", err)
	}

	byName := make(map[string]tools.Tool, len(toolset))
	for _, tool := range toolset {
		byName[tool.Name()] = tool
	}

	e.mu.Lock()
	e.provider = provider
	e.tools = toolset
	e.toolsByName = byName
	e.systemPrompt = systemPrompt
	e.mu.Unlock()
	return nil
}

// Run executes the loop without streaming and parses the final content
// into the agent's output schema.
func (e *Engine) Run(ctx context.Context, userID, sessionID string, input string) (any, error) {
	content, err := e.runLoop(ctx, userID, sessionID, input, nil)
	if err != nil {
		return nil, err
	}
	return engine.ParseOutput(content, e.cfg.OutputSchema)
}

// RunStream executes the loop emitting normalized stream events. The
// stream starts with thinking and always terminates with exactly one
// done; errors emit an error event first.
func (e *Engine) RunStream(ctx context.Context, userID, sessionID string, input string) (<-chan protocol.StreamEvent, error) {
	events := make(chan protocol.StreamEvent, 64)

	emit := func(event protocol.StreamEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(events)

		if !emit(protocol.NewThinkingEvent(e.cfg.AgentName)) {
			return
		}

		_, err := e.runLoop(ctx, userID, sessionID, input, emit)
		if err != nil {
			if ctx.Err() != nil {
				// Consumer is gone; no further events.
				return
			}
			if !emit(protocol.NewErrorEvent(e.cfg.AgentName, err)) {
				return
			}
		}
		emit(protocol.NewDoneEvent(e.cfg.AgentName))
	}()

	return events, nil
}

// runLoop is the shared state machine. A nil emit selects non-streaming
// model calls; otherwise content deltas and tool events flow through it.
func (e *Engine) runLoop(ctx context.Context, userID, sessionID string, input string, emit func(protocol.StreamEvent) bool) (string, error) {
	start := time.Now()
	ctx = e.observer.BeforeAgent(ctx, e.cfg.AgentName, userID, sessionID)
	var runErr error
	defer func() {
		e.observer.AfterAgent(ctx, e.cfg.AgentName, time.Since(start), runErr)
	}()

	if err := e.store.EnsureSession(ctx, userID, sessionID); err != nil {
		runErr = err
		return "", err
	}

	history, err := e.store.History(ctx, userID, sessionID)
	if err != nil {
		runErr = err
		return "", err
	}
	history = session.TrimToBudget(history, e.cfg.HistoryTokenBudget, e.tokenCounter())

	e.mu.RLock()
	provider := e.provider
	toolset := e.tools
	systemPrompt := e.systemPrompt
	e.mu.RUnlock()

	messages := make([]protocol.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, protocol.Message{Role: protocol.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, history...)

	userMsg := protocol.Message{Role: protocol.RoleUser, Content: input}
	messages = append(messages, userMsg)
	turn := []protocol.Message{userMsg}

	ctx = tools.WithRequestScope(ctx, tools.RequestScope{UserID: userID, SessionID: sessionID})
	defs := tools.ToDefinitions(toolset)

	for round := 0; round < e.cfg.MaxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			return "", err
		}

		text, toolCalls, err := e.modelCall(ctx, provider, messages, defs, emit)
		if err != nil {
			runErr = err
			return "", err
		}

		assistant := protocol.Message{Role: protocol.RoleAssistant, Content: text}
		assistant.ToolCalls = append(assistant.ToolCalls, toolCalls...)
		messages = append(messages, assistant)
		turn = append(turn, assistant)

		if len(toolCalls) == 0 {
			if err := e.store.Append(ctx, userID, sessionID, turn...); err != nil {
				runErr = err
				return "", err
			}
			return text, nil
		}

		for _, tc := range toolCalls {
			if engine.RewriteUserIDPlaceholder(tc.Args, userID) {
				slog.Debug("rewrote placeholder user_id argument",
					"agent", e.cfg.AgentName,
					"tool", tc.Name)
			}

			if emit != nil {
				if !emit(protocol.NewToolCallEvent(e.cfg.AgentName, tc.Name, tc.Args)) {
					return "", ctx.Err()
				}
			}

			result := e.executeTool(ctx, tc)

			if emit != nil {
				if !emit(protocol.NewToolResultEvent(e.cfg.AgentName, tc.Name, result)) {
					return "", ctx.Err()
				}
			}

			toolMsg := protocol.Message{
				Role:       protocol.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			}
			messages = append(messages, toolMsg)
			turn = append(turn, toolMsg)
		}
	}

	slog.Warn("max tool rounds reached",
		"agent", e.cfg.AgentName,
		"user_id", userID,
		"session_id", sessionID,
		"rounds", e.cfg.MaxToolRounds)

	if err := e.store.Append(ctx, userID, sessionID, turn...); err != nil {
		runErr = err
		return "", err
	}
	if emit != nil {
		emit(protocol.NewContentEvent(e.cfg.AgentName, engine.MaxToolRoundsMessage))
	}
	return engine.MaxToolRoundsMessage, nil
}

// modelCall performs one LLM round with the rate-limit policy: up to four
// retries with linear back-off, then the error propagates. A stream that
// already emitted content is never retried.
func (e *Engine) modelCall(ctx context.Context, provider llms.Provider, messages []protocol.Message, defs []llms.ToolDefinition, emit func(protocol.StreamEvent) bool) (string, []*protocol.ToolCall, error) {
	var lastErr error
	for attempt := 0; attempt <= rateLimitRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * e.retryBaseDelay
			slog.Warn("LLM rate limited, backing off",
				"agent", e.cfg.AgentName,
				"delay", delay,
				"attempt", attempt,
				"max_attempts", rateLimitRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}
		}

		text, toolCalls, emitted, err := e.callOnce(ctx, provider, messages, defs, emit)
		var rateLimited *llms.RateLimitError
		if err != nil && errors.As(err, &rateLimited) && !emitted {
			lastErr = err
			continue
		}
		return text, toolCalls, err
	}
	return "", nil, lastErr
}

func (e *Engine) callOnce(ctx context.Context, provider llms.Provider, messages []protocol.Message, defs []llms.ToolDefinition, emit func(protocol.StreamEvent) bool) (string, []*protocol.ToolCall, bool, error) {
	start := time.Now()
	e.observer.BeforeModel(ctx, e.cfg.AgentName, provider.ModelName())

	if emit == nil {
		text, toolCalls, tokens, err := provider.Generate(ctx, messages, defs)
		e.observer.AfterModel(ctx, e.cfg.AgentName, provider.ModelName(),
			observability.DecisionFor(toolNames(toolCalls)), time.Since(start), tokens, err)
		return text, toolCalls, false, err
	}

	chunks, err := provider.GenerateStreaming(ctx, messages, defs)
	if err != nil {
		e.observer.AfterModel(ctx, e.cfg.AgentName, provider.ModelName(), "", time.Since(start), 0, err)
		return "", nil, false, err
	}

	var text string
	var toolCalls []*protocol.ToolCall
	var tokens int
	emitted := false

	for chunk := range chunks {
		switch chunk.Type {
		case llms.ChunkTypeText:
			text += chunk.Text
			emitted = true
			if !emit(protocol.NewContentEvent(e.cfg.AgentName, chunk.Text)) {
				return text, toolCalls, emitted, ctx.Err()
			}
		case llms.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, chunk.ToolCall)
			}
		case llms.ChunkTypeDone:
			tokens = chunk.Tokens
		case llms.ChunkTypeError:
			e.observer.AfterModel(ctx, e.cfg.AgentName, provider.ModelName(), "", time.Since(start), tokens, chunk.Error)
			return text, toolCalls, emitted, chunk.Error
		}
	}

	e.observer.AfterModel(ctx, e.cfg.AgentName, provider.ModelName(),
		observability.DecisionFor(toolNames(toolCalls)), time.Since(start), tokens, nil)
	return text, toolCalls, emitted, nil
}

func toolNames(calls []*protocol.ToolCall) []string {
	names := make([]string, len(calls))
	for i, tc := range calls {
		names[i] = tc.Name
	}
	return names
}

// executeTool invokes one tool. Failures are returned as descriptive
// strings so the tool-call conversation with the LLM stays intact.
func (e *Engine) executeTool(ctx context.Context, tc *protocol.ToolCall) string {
	start := time.Now()

	info := observability.ToolCallInfo{Tool: tc.Name, Args: tc.ArgsJSON()}

	tool, exists := e.lookupTool(tc.Name)
	if !exists {
		err := fmt.Errorf("tool not found")
		e.observer.BeforeTool(ctx, e.cfg.AgentName, info)
		e.observer.AfterTool(ctx, e.cfg.AgentName, info, time.Since(start), err)
		return fmt.Sprintf("Error executing tool %s: %v", tc.Name, err)
	}

	if provider, ok := tool.(tools.MetadataProvider); ok {
		meta := provider.Metadata()
		info.IsAgentTool = meta.IsAgentTool
		info.ServerID = meta.ServerID
	}

	e.observer.BeforeTool(ctx, e.cfg.AgentName, info)
	result, err := tool.Execute(ctx, tc.Args)
	e.observer.AfterTool(ctx, e.cfg.AgentName, info, time.Since(start), err)
	if err != nil {
		return fmt.Sprintf("Error executing tool %s: %v", tc.Name, err)
	}
	return result
}

// tokenCounter lazily loads the tiktoken encoding, and only when a history
// budget is configured. A load failure logs a warning and disables
// trimming instead of failing the turn.
func (e *Engine) tokenCounter() *utils.TokenCounter {
	if e.cfg.HistoryTokenBudget <= 0 {
		return nil
	}
	e.counterOnce.Do(func() {
		counter, err := utils.NewTokenCounter(e.cfg.LLMModel)
		if err != nil {
			slog.Warn("token counter unavailable, history trimming disabled",
				"agent", e.cfg.AgentName,
				"model", e.cfg.LLMModel,
				"error", err)
			return
		}
		e.counter = counter
	})
	return e.counter
}

func (e *Engine) lookupTool(name string) (tools.Tool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tool, exists := e.toolsByName[name]
	return tool, exists
}
