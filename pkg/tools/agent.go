package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentship/agentship/pkg/protocol"
)

// maxAgentToolDepth bounds sub-agent chains so mutually referencing agents
// cannot recurse forever.
const maxAgentToolDepth = 3

type callDepthKey struct{}

func callDepth(ctx context.Context) int {
	depth, _ := ctx.Value(callDepthKey{}).(int)
	return depth
}

// AgentTool exposes another agent as a callable tool. The sub-agent is
// resolved lazily on first use so registration order between agents does
// not matter.
type AgentTool struct {
	agentName   string
	description string
	resolve     AgentResolver

	resolveOnce sync.Once
	agent       ChatAgent
	resolveErr  error
}

func NewAgentTool(agentName, description string, resolve AgentResolver) *AgentTool {
	return &AgentTool{
		agentName:   agentName,
		description: description,
		resolve:     resolve,
	}
}

func (t *AgentTool) Name() string { return t.agentName }

func (t *AgentTool) Description() string {
	if t.description != "" {
		return t.description
	}
	return fmt.Sprintf("Delegate a task to the %s agent.", t.agentName)
}

func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The request to send to the agent.",
			},
		},
		"required": []any{"query"},
	}
}

func (t *AgentTool) Metadata() Metadata {
	return Metadata{IsAgentTool: true}
}

// Execute runs one chat turn against the sub-agent. The user id propagates
// from the request scope; the sub-agent gets its own session id derived
// from the parent's so the two histories never mix.
func (t *AgentTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	depth := callDepth(ctx)
	if depth >= maxAgentToolDepth {
		return "", fmt.Errorf("agent call depth limit (%d) reached invoking %q", maxAgentToolDepth, t.agentName)
	}
	ctx = context.WithValue(ctx, callDepthKey{}, depth+1)

	t.resolveOnce.Do(func() {
		t.agent, t.resolveErr = t.resolve(t.agentName)
	})
	if t.resolveErr != nil {
		return "", fmt.Errorf("failed to resolve agent %q: %w", t.agentName, t.resolveErr)
	}

	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("agent tool %q requires a query argument", t.agentName)
	}

	scope, _ := ScopeFrom(ctx)
	req := &protocol.ChatRequest{
		AgentName: t.agentName,
		UserID:    scope.UserID,
		SessionID: SubSessionID(t.agentName, scope.SessionID),
		Sender:    "agent",
		Query:     query,
	}

	resp, err := t.agent.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent %q failed: %w", t.agentName, err)
	}
	if !resp.Success {
		return "", fmt.Errorf("agent %q failed: %s", t.agentName, resp.Error)
	}

	switch response := resp.Response.(type) {
	case string:
		return response, nil
	default:
		encoded, err := json.Marshal(response)
		if err != nil {
			return "", fmt.Errorf("failed to encode agent response: %w", err)
		}
		return string(encoded), nil
	}
}

// SubSessionID derives the session id a sub-agent uses when invoked from
// a parent session.
func SubSessionID(agentName, parentSessionID string) string {
	return "sub:" + agentName + ":" + parentSessionID
}
