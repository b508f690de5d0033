// Package orchestrated implements the engine that delegates the
// conversation loop to a runner and maps the runner's events onto the
// normalized stream protocol.
package orchestrated

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/engine"
	"github.com/agentship/agentship/pkg/protocol"
	"github.com/agentship/agentship/pkg/runner"
)

// Builder produces the runner this engine delegates to.
type Builder func(ctx context.Context) (runner.Runner, error)

// Engine wraps a runner. The runner owns the loop and the history; the
// engine ensures the session exists, submits the message and translates
// events.
type Engine struct {
	cfg   *config.AgentConfig
	build Builder

	mu sync.RWMutex
	r  runner.Runner
}

func New(ctx context.Context, cfg *config.AgentConfig, build Builder) (*Engine, error) {
	e := &Engine{cfg: cfg, build: build}
	if err := e.Rebuild(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) EngineName() string { return config.EngineOrchestrated }

func (e *Engine) Capabilities() engine.Capabilities {
	return engine.Capabilities{
		SupportedProviders:    []string{"openai", "anthropic", "ollama"},
		SupportsSSEStreaming:  true,
		SupportsToolCalling:   true,
		SupportsBidiStreaming: false,
		SupportsMultimodal:    false,
		Notes:                 "runner-delegated loop with parallel threading",
	}
}

// Rebuild swaps in a freshly built runner, closing the old one.
func (e *Engine) Rebuild(ctx context.Context) error {
	r, err := e.build(ctx)
	if err != nil {
		return fmt.Errorf("engine rebuild failed: %w", err)
	}

	e.mu.Lock()
	old := e.r
	e.r = r
	e.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (e *Engine) currentRunner() runner.Runner {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.r
}

func (e *Engine) Run(ctx context.Context, userID, sessionID string, input string) (any, error) {
	r := e.currentRunner()
	if err := r.EnsureSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	content, err := r.Run(ctx, userID, sessionID, input)
	if err != nil {
		return nil, err
	}
	return engine.ParseOutput(content, e.cfg.OutputSchema)
}

func (e *Engine) RunStream(ctx context.Context, userID, sessionID string, input string) (<-chan protocol.StreamEvent, error) {
	r := e.currentRunner()
	if err := r.EnsureSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	runnerEvents, err := r.RunStream(ctx, userID, sessionID, input)
	if err != nil {
		return nil, err
	}

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

		for event := range runnerEvents {
			var mapped protocol.StreamEvent
			switch event.Kind {
			case runner.EventText:
				mapped = protocol.NewContentEvent(e.cfg.AgentName, event.Text)
			case runner.EventFunctionCall:
				mapped = protocol.NewToolCallEvent(e.cfg.AgentName, event.Call.Name, event.Call.Args)
			case runner.EventFunctionResponse:
				mapped = protocol.NewToolResultEvent(e.cfg.AgentName, event.Response.Name, event.Response.Result)
			case runner.EventError:
				mapped = protocol.NewErrorEvent(e.cfg.AgentName, event.Err)
			case runner.EventDone:
				continue
			default:
				continue
			}
			if !emit(mapped) {
				return
			}
		}

		emit(protocol.NewDoneEvent(e.cfg.AgentName))
	}()

	return events, nil
}
