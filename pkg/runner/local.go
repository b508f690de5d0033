package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentship/agentship/pkg/engine"
	"github.com/agentship/agentship/pkg/llms"
	"github.com/agentship/agentship/pkg/observability"
	"github.com/agentship/agentship/pkg/protocol"
	"github.com/agentship/agentship/pkg/session"
	"github.com/agentship/agentship/pkg/tools"
)

// LocalRunner drives the conversation loop in-process: LLM rounds against
// the provider, sequential tool execution, and history kept in its own
// session store.
type LocalRunner struct {
	provider     llms.Provider
	tools        []tools.Tool
	store        session.Store
	observer     observability.Observer
	systemPrompt string
	maxRounds    int
}

func NewLocalRunner(provider llms.Provider, toolset []tools.Tool, store session.Store, observer observability.Observer, systemPrompt string, maxRounds int) *LocalRunner {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	if observer == nil {
		observer = observability.NoopObserver{}
	}
	return &LocalRunner{
		provider:     provider,
		tools:        toolset,
		store:        store,
		observer:     observer,
		systemPrompt: systemPrompt,
		maxRounds:    maxRounds,
	}
}

func (r *LocalRunner) EnsureSession(ctx context.Context, userID, sessionID string) error {
	return r.store.EnsureSession(ctx, userID, sessionID)
}

func (r *LocalRunner) Close() error {
	return r.provider.Close()
}

// Run executes the loop without streaming and returns the final text.
func (r *LocalRunner) Run(ctx context.Context, userID, sessionID string, message string) (string, error) {
	var final string
	events, err := r.RunStream(ctx, userID, sessionID, message)
	if err != nil {
		return "", err
	}
	for event := range events {
		switch event.Kind {
		case EventText:
			final += event.Text
		case EventError:
			return "", event.Err
		}
	}
	return final, nil
}

// RunStream executes the loop and streams runner events. The channel is
// always closed; sends honor ctx cancellation so an abandoned consumer
// never wedges the producer.
func (r *LocalRunner) RunStream(ctx context.Context, userID, sessionID string, message string) (<-chan Event, error) {
	history, err := r.store.History(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 32)
	emit := func(event Event) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(events)
		if err := r.loop(ctx, userID, sessionID, message, history, emit); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !emit(Event{Kind: EventError, Err: err}) {
				return
			}
		}
		emit(Event{Kind: EventDone})
	}()
	return events, nil
}

func (r *LocalRunner) loop(ctx context.Context, userID, sessionID, message string, history []protocol.Message, emit func(Event) bool) error {
	start := time.Now()
	ctx = r.observer.BeforeAgent(ctx, "runner", userID, sessionID)
	var runErr error
	defer func() {
		r.observer.AfterAgent(ctx, "runner", time.Since(start), runErr)
	}()

	messages := make([]protocol.Message, 0, len(history)+2)
	if r.systemPrompt != "" {
		messages = append(messages, protocol.Message{Role: protocol.RoleSystem, Content: r.systemPrompt})
	}
	messages = append(messages, history...)

	userMsg := protocol.Message{Role: protocol.RoleUser, Content: message}
	messages = append(messages, userMsg)

	var turn []protocol.Message
	turn = append(turn, userMsg)

	ctx = tools.WithRequestScope(ctx, tools.RequestScope{UserID: userID, SessionID: sessionID})
	defs := tools.ToDefinitions(r.tools)

	for round := 0; round < r.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			return err
		}

		roundStart := time.Now()
		r.observer.BeforeModel(ctx, "runner", r.provider.ModelName())
		text, toolCalls, tokens, err := r.provider.Generate(ctx, messages, defs)
		r.observer.AfterModel(ctx, "runner", r.provider.ModelName(),
			modelDecision(toolCalls), time.Since(roundStart), tokens, err)
		if err != nil {
			runErr = err
			return err
		}

		assistant := protocol.Message{Role: protocol.RoleAssistant, Content: text}
		assistant.ToolCalls = append(assistant.ToolCalls, toolCalls...)
		messages = append(messages, assistant)
		turn = append(turn, assistant)

		if text != "" {
			if !emit(Event{Kind: EventText, Text: text}) {
				runErr = ctx.Err()
				return runErr
			}
		}

		if len(toolCalls) == 0 {
			runErr = r.store.Append(ctx, userID, sessionID, turn...)
			return runErr
		}

		for _, tc := range toolCalls {
			if engine.RewriteUserIDPlaceholder(tc.Args, userID) {
				slog.Debug("rewrote placeholder user_id argument", "tool", tc.Name)
			}

			if !emit(Event{Kind: EventFunctionCall, Call: tc}) {
				runErr = ctx.Err()
				return runErr
			}

			result := r.executeTool(ctx, tc)
			if !emit(Event{Kind: EventFunctionResponse, Response: &ToolResponse{
				CallID: tc.ID,
				Name:   tc.Name,
				Result: result,
			}}) {
				runErr = ctx.Err()
				return runErr
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

	slog.Warn("runner reached max tool rounds", "user_id", userID, "session_id", sessionID, "rounds", r.maxRounds)
	if err := r.store.Append(ctx, userID, sessionID, turn...); err != nil {
		runErr = err
		return err
	}
	if !emit(Event{Kind: EventText, Text: "Max tool iterations reached. Please try again."}) {
		runErr = ctx.Err()
	}
	return runErr
}

func modelDecision(calls []*protocol.ToolCall) string {
	names := make([]string, len(calls))
	for i, tc := range calls {
		names[i] = tc.Name
	}
	return observability.DecisionFor(names)
}

// executeTool runs one call; failures come back as descriptive strings so
// the conversation with the LLM stays intact.
func (r *LocalRunner) executeTool(ctx context.Context, tc *protocol.ToolCall) string {
	start := time.Now()
	info := observability.ToolCallInfo{Tool: tc.Name, Args: tc.ArgsJSON()}

	t, ok := r.toolByName(tc.Name)
	if !ok {
		err := fmt.Errorf("tool not found")
		r.observer.BeforeTool(ctx, "runner", info)
		r.observer.AfterTool(ctx, "runner", info, time.Since(start), err)
		return fmt.Sprintf("Error executing tool %s: %v", tc.Name, err)
	}

	if provider, ok := t.(tools.MetadataProvider); ok {
		meta := provider.Metadata()
		info.IsAgentTool = meta.IsAgentTool
		info.ServerID = meta.ServerID
	}

	r.observer.BeforeTool(ctx, "runner", info)
	result, err := t.Execute(ctx, tc.Args)
	r.observer.AfterTool(ctx, "runner", info, time.Since(start), err)
	if err != nil {
		return fmt.Sprintf("Error executing tool %s: %v", tc.Name, err)
	}
	return result
}

func (r *LocalRunner) toolByName(name string) (tools.Tool, bool) {
	for _, tool := range r.tools {
		if tool.Name() == name {
			return tool, true
		}
	}
	return nil, false
}
