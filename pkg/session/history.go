package session

import (
	"github.com/agentship/agentship/pkg/protocol"
	"github.com/agentship/agentship/pkg/utils"
)

// TrimToBudget drops the oldest turns until the history fits within budget
// tokens. System messages are always kept, the newest turn survives, and a
// turn is dropped whole so an assistant tool-call message never loses its
// tool results. A budget of zero (or a nil counter) disables trimming.
func TrimToBudget(messages []protocol.Message, budget int, counter *utils.TokenCounter) []protocol.Message {
	if budget <= 0 || counter == nil {
		return messages
	}
	if counter.CountMessages(messages) <= budget {
		return messages
	}

	var system, rest []protocol.Message
	for _, msg := range messages {
		if msg.Role == protocol.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	turns := groupTurns(rest)
	for len(turns) > 1 {
		candidate := append(append([]protocol.Message{}, system...), flatten(turns)...)
		if counter.CountMessages(candidate) <= budget {
			break
		}
		turns = turns[1:]
	}

	return append(system, flatten(turns)...)
}

// groupTurns splits a history at user messages. Each turn carries the user
// message and everything up to the next one, keeping assistant tool-call
// messages together with their tool results.
func groupTurns(messages []protocol.Message) [][]protocol.Message {
	var turns [][]protocol.Message
	for _, msg := range messages {
		if msg.Role == protocol.RoleUser || len(turns) == 0 {
			turns = append(turns, []protocol.Message{msg})
			continue
		}
		last := len(turns) - 1
		turns[last] = append(turns[last], msg)
	}
	return turns
}

func flatten(turns [][]protocol.Message) []protocol.Message {
	var out []protocol.Message
	for _, turn := range turns {
		out = append(out, turn...)
	}
	return out
}
