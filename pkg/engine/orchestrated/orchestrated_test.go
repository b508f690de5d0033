package orchestrated

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentship/agentship/pkg/config"
	"github.com/agentship/agentship/pkg/protocol"
	"github.com/agentship/agentship/pkg/runner"
)

// fakeRunner plays back a fixed event script.
type fakeRunner struct {
	script  []runner.Event
	output  string
	ensured []string
	closed  bool
	runErr  error
}

func (r *fakeRunner) EnsureSession(_ context.Context, userID, sessionID string) error {
	r.ensured = append(r.ensured, userID+":"+sessionID)
	return nil
}

func (r *fakeRunner) Run(_ context.Context, _, _ string, _ string) (string, error) {
	if r.runErr != nil {
		return "", r.runErr
	}
	return r.output, nil
}

func (r *fakeRunner) RunStream(_ context.Context, _, _ string, _ string) (<-chan runner.Event, error) {
	events := make(chan runner.Event, len(r.script))
	for _, ev := range r.script {
		events <- ev
	}
	close(events)
	return events, nil
}

func (r *fakeRunner) Close() error {
	r.closed = true
	return nil
}

func testConfig() *config.AgentConfig {
	cfg := &config.AgentConfig{
		AgentName:       "orchestrator",
		LLMProviderName: "openai",
		LLMModel:        "gpt-4o",
		ExecutionEngine: config.EngineOrchestrated,
	}
	cfg.SetDefaults()
	return cfg
}

func newTestEngine(t *testing.T, r runner.Runner) *Engine {
	t.Helper()
	eng, err := New(context.Background(), testConfig(),
		func(context.Context) (runner.Runner, error) { return r, nil })
	require.NoError(t, err)
	return eng
}

func TestRunStream_EventMapping(t *testing.T) {
	fake := &fakeRunner{script: []runner.Event{
		{Kind: runner.EventText, Text: "working on it"},
		{Kind: runner.EventFunctionCall, Call: &protocol.ToolCall{Name: "search", Args: map[string]any{"q": "x"}}},
		{Kind: runner.EventFunctionResponse, Response: &runner.ToolResponse{Name: "search", Result: "hit"}},
		{Kind: runner.EventText, Text: "final answer"},
		{Kind: runner.EventDone},
	}}
	eng := newTestEngine(t, fake)

	events, err := eng.RunStream(context.Background(), "u", "s", "go")
	require.NoError(t, err)

	var got []protocol.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}

	types := make([]protocol.EventType, len(got))
	for i, ev := range got {
		types[i] = ev.Type
	}
	assert.Equal(t, []protocol.EventType{
		protocol.EventThinking,
		protocol.EventContent,
		protocol.EventToolCall,
		protocol.EventToolResult,
		protocol.EventContent,
		protocol.EventDone,
	}, types)

	assert.Equal(t, "working on it", got[1].Text)
	assert.Equal(t, "search", got[2].ToolName)
	assert.Equal(t, "hit", got[3].Result)

	// The runner's done event is replaced by the engine's own terminator.
	assert.Equal(t, protocol.EventDone, got[len(got)-1].Type)
}

func TestRunStream_ErrorEventMapped(t *testing.T) {
	fake := &fakeRunner{script: []runner.Event{
		{Kind: runner.EventError, Err: fmt.Errorf("runner failed")},
		{Kind: runner.EventDone},
	}}
	eng := newTestEngine(t, fake)

	events, err := eng.RunStream(context.Background(), "u", "s", "go")
	require.NoError(t, err)

	var got []protocol.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, protocol.EventError, got[1].Type)
	assert.Equal(t, "runner failed", got[1].Error)
	assert.Equal(t, protocol.EventDone, got[2].Type)
}

func TestRunStream_EnsuresSessionFirst(t *testing.T) {
	fake := &fakeRunner{script: []runner.Event{{Kind: runner.EventDone}}}
	eng := newTestEngine(t, fake)

	events, err := eng.RunStream(context.Background(), "alice", "s1", "go")
	require.NoError(t, err)
	for range events {
	}

	assert.Equal(t, []string{"alice:s1"}, fake.ensured)
}

func TestRun_ParsesOutput(t *testing.T) {
	fake := &fakeRunner{output: `{"answer": "yes"}`}
	eng, err := New(context.Background(), func() *config.AgentConfig {
		cfg := testConfig()
		cfg.OutputSchema = &config.Schema{
			Type:       "object",
			Properties: map[string]config.SchemaField{"answer": {Type: "string"}},
		}
		return cfg
	}(), func(context.Context) (runner.Runner, error) { return fake, nil })
	require.NoError(t, err)

	out, err := eng.Run(context.Background(), "u", "s", "go")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "yes"}, out)
}

func TestRun_RunnerError(t *testing.T) {
	fake := &fakeRunner{runErr: fmt.Errorf("delegate blew up")}
	eng := newTestEngine(t, fake)

	_, err := eng.Run(context.Background(), "u", "s", "go")
	assert.Error(t, err)
}

func TestRebuild_SwapsAndClosesRunner(t *testing.T) {
	first := &fakeRunner{}
	second := &fakeRunner{}
	runners := []runner.Runner{first, second}
	i := 0

	eng, err := New(context.Background(), testConfig(),
		func(context.Context) (runner.Runner, error) {
			r := runners[i]
			i++
			return r, nil
		})
	require.NoError(t, err)

	require.NoError(t, eng.Rebuild(context.Background()))
	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Same(t, second, eng.currentRunner())
}
