// Package agent provides the chat facade over an execution engine and the
// registry/factory that assembles agents from configuration.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/engine"
	"github.com/agentship/agentship/pkg/protocol"
)

// Agent is one configured agent bound to its engine.
type Agent struct {
	cfg *config.AgentConfig
	eng engine.Engine
}

func New(cfg *config.AgentConfig, eng engine.Engine) *Agent {
	return &Agent{cfg: cfg, eng: eng}
}

func (a *Agent) Name() string        { return a.cfg.AgentName }
func (a *Agent) Description() string { return a.cfg.Description }

func (a *Agent) Config() *config.AgentConfig { return a.cfg }

func (a *Agent) Capabilities() engine.Capabilities { return a.eng.Capabilities() }

// Rebuild refreshes the agent's engine after a config change.
func (a *Agent) Rebuild(ctx context.Context) error { return a.eng.Rebuild(ctx) }

// Chat runs one non-streaming turn. Engine errors come back inside the
// response with Success=false; only request-shape problems return a Go
// error.
func (a *Agent) Chat(ctx context.Context, req *protocol.ChatRequest) (*protocol.ChatResponse, error) {
	input, err := a.normalizeQuery(req.Query)
	if err != nil {
		return nil, err
	}

	resp := &protocol.ChatResponse{
		AgentName: a.cfg.AgentName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}

	output, err := a.eng.Run(ctx, req.UserID, req.SessionID, input)
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		return resp, nil
	}

	resp.Success = true
	resp.Response = output
	return resp, nil
}

// ChatStream runs one streaming turn. The facade emits the session event,
// then passes the engine's stream through unchanged; the engine guarantees
// the terminating done.
func (a *Agent) ChatStream(ctx context.Context, req *protocol.ChatRequest) (<-chan protocol.StreamEvent, error) {
	input, err := a.normalizeQuery(req.Query)
	if err != nil {
		return nil, err
	}

	engineEvents, err := a.eng.RunStream(ctx, req.UserID, req.SessionID, input)
	if err != nil {
		return nil, err
	}

	events := make(chan protocol.StreamEvent, 64)
	go func() {
		defer close(events)

		select {
		case events <- protocol.NewSessionEvent(a.cfg.AgentName, req.UserID, req.SessionID):
		case <-ctx.Done():
			return
		}

		for event := range engineEvents {
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// normalizeQuery turns the request's query (string or object) into the
// engine's input string, validating it against the declared input schema.
func (a *Agent) normalizeQuery(query any) (string, error) {
	switch q := query.(type) {
	case string:
		if q == "" {
			return "", fmt.Errorf("query cannot be empty")
		}
		return q, nil

	case map[string]any:
		if err := validateInput(q, a.cfg.InputSchema); err != nil {
			return "", err
		}
		encoded, err := json.Marshal(q)
		if err != nil {
			return "", fmt.Errorf("failed to encode query: %w", err)
		}
		return string(encoded), nil

	case nil:
		return "", fmt.Errorf("query is required")

	default:
		return "", fmt.Errorf("query must be a string or an object, got %T", query)
	}
}

func validateInput(input map[string]any, schema *config.Schema) error {
	if schema == nil {
		return nil
	}
	for _, field := range schema.Required {
		if _, present := input[field]; !present {
			return fmt.Errorf("query is missing required field %q", field)
		}
	}
	return nil
}
