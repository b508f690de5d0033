package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentship/agentship/pkg/protocol"
	"github.com/agentship/agentship/pkg/utils"
)

func testCounter(t *testing.T) *utils.TokenCounter {
	t.Helper()
	counter, err := utils.NewTokenCounter("gpt-4o")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	return counter
}

func TestTrimToBudget_ZeroBudgetDisablesTrimming(t *testing.T) {
	messages := []protocol.Message{
		{Role: protocol.RoleUser, Content: strings.Repeat("long ", 500)},
	}
	assert.Equal(t, messages, TrimToBudget(messages, 0, nil))
}

func TestTrimToBudget_UnderBudgetUntouched(t *testing.T) {
	counter := testCounter(t)
	messages := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "be brief"},
		{Role: protocol.RoleUser, Content: "hi"},
	}
	assert.Equal(t, messages, TrimToBudget(messages, 10_000, counter))
}

func TestTrimToBudget_DropsOldestNonSystem(t *testing.T) {
	counter := testCounter(t)

	messages := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "system prompt"},
		{Role: protocol.RoleUser, Content: strings.Repeat("old message ", 100)},
		{Role: protocol.RoleAssistant, Content: strings.Repeat("old reply ", 100)},
		{Role: protocol.RoleUser, Content: "recent question"},
	}

	budget := counter.CountMessages([]protocol.Message{messages[0], messages[3]}) + 10
	trimmed := TrimToBudget(messages, budget, counter)

	require.NotEmpty(t, trimmed)
	assert.Equal(t, protocol.RoleSystem, trimmed[0].Role)
	assert.Equal(t, "recent question", trimmed[len(trimmed)-1].Content)
	assert.Less(t, len(trimmed), len(messages))
}

func TestTrimToBudget_DropsWholeTurns(t *testing.T) {
	counter := testCounter(t)

	oldTurn := []protocol.Message{
		{Role: protocol.RoleUser, Content: strings.Repeat("look this up ", 100)},
		{Role: protocol.RoleAssistant, ToolCalls: []*protocol.ToolCall{{ID: "call_1", Name: "search"}}},
		{Role: protocol.RoleTool, Content: strings.Repeat("result ", 100), ToolCallID: "call_1", ToolName: "search"},
		{Role: protocol.RoleAssistant, Content: strings.Repeat("summary ", 100)},
	}
	newTurn := []protocol.Message{
		{Role: protocol.RoleUser, Content: "recent question"},
	}

	messages := []protocol.Message{{Role: protocol.RoleSystem, Content: "system prompt"}}
	messages = append(messages, oldTurn...)
	messages = append(messages, newTurn...)

	budget := counter.CountMessages([]protocol.Message{messages[0], messages[len(messages)-1]}) + 10
	trimmed := TrimToBudget(messages, budget, counter)

	// The old turn goes as a unit; a tool-role message never survives
	// without the assistant tool-call message that requested it.
	for _, msg := range trimmed {
		if msg.Role == protocol.RoleTool {
			var paired bool
			for _, other := range trimmed {
				for _, tc := range other.ToolCalls {
					if tc.ID == msg.ToolCallID {
						paired = true
					}
				}
			}
			assert.True(t, paired, "orphaned tool message %q", msg.ToolCallID)
		}
	}
	assert.Equal(t, "recent question", trimmed[len(trimmed)-1].Content)
	assert.Less(t, len(trimmed), len(messages))
}

func TestTrimToBudget_SystemAlwaysKept(t *testing.T) {
	counter := testCounter(t)

	messages := []protocol.Message{
		{Role: protocol.RoleSystem, Content: strings.Repeat("rules ", 200)},
		{Role: protocol.RoleUser, Content: strings.Repeat("chatter ", 200)},
		{Role: protocol.RoleUser, Content: "latest"},
	}

	trimmed := TrimToBudget(messages, 50, counter)

	var system int
	for _, msg := range trimmed {
		if msg.Role == protocol.RoleSystem {
			system++
		}
	}
	assert.Equal(t, 1, system)
	// The newest non-system message survives even over budget.
	assert.Equal(t, "latest", trimmed[len(trimmed)-1].Content)
}
