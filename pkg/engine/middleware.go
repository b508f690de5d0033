package engine

import (
	"context"

	"github.com/agentship/agentship/pkg/protocol"
)

// Middleware transforms a run's input and output. Streams are pass-through;
// middlewares never see individual events.
type Middleware interface {
	BeforeRun(ctx context.Context, input string) (string, error)
	AfterRun(ctx context.Context, output any) (any, error)
}

// MiddlewareEngine wraps an engine with an ordered middleware chain.
// BeforeRun hooks apply in order, AfterRun hooks in reverse.
type MiddlewareEngine struct {
	inner       Engine
	middlewares []Middleware
}

func WithMiddlewares(inner Engine, middlewares ...Middleware) *MiddlewareEngine {
	return &MiddlewareEngine{inner: inner, middlewares: middlewares}
}

func (e *MiddlewareEngine) EngineName() string         { return e.inner.EngineName() }
func (e *MiddlewareEngine) Capabilities() Capabilities { return e.inner.Capabilities() }

func (e *MiddlewareEngine) Rebuild(ctx context.Context) error { return e.inner.Rebuild(ctx) }

func (e *MiddlewareEngine) Run(ctx context.Context, userID, sessionID string, input string) (any, error) {
	input, err := e.beforeRun(ctx, input)
	if err != nil {
		return nil, err
	}

	output, err := e.inner.Run(ctx, userID, sessionID, input)
	if err != nil {
		return nil, err
	}

	for i := len(e.middlewares) - 1; i >= 0; i-- {
		output, err = e.middlewares[i].AfterRun(ctx, output)
		if err != nil {
			return nil, err
		}
	}
	return output, nil
}

func (e *MiddlewareEngine) RunStream(ctx context.Context, userID, sessionID string, input string) (<-chan protocol.StreamEvent, error) {
	input, err := e.beforeRun(ctx, input)
	if err != nil {
		return nil, err
	}
	return e.inner.RunStream(ctx, userID, sessionID, input)
}

func (e *MiddlewareEngine) beforeRun(ctx context.Context, input string) (string, error) {
	var err error
	for _, mw := range e.middlewares {
		input, err = mw.BeforeRun(ctx, input)
		if err != nil {
			return "", err
		}
	}
	return input, nil
}
