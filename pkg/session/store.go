// Package session provides conversation persistence behind a single Store
// contract, with in-memory and Postgres-backed implementations selected by
// environment.
package session

import (
	"context"

	"github.com/agentship/agentship/pkg/protocol"
)

// ThreadID is the persistence key for one conversation. Engines must use
// this same key when loading and saving history.
func ThreadID(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// Store persists per-session message history. A session is created on
// first use; writes within one session id are serialized by the engine.
type Store interface {
	// EnsureSession makes the session exist, creating it when absent.
	EnsureSession(ctx context.Context, userID, sessionID string) error

	// History returns the session's messages in order.
	History(ctx context.Context, userID, sessionID string) ([]protocol.Message, error)

	// Append adds messages to the end of the session's history.
	Append(ctx context.Context, userID, sessionID string, messages ...protocol.Message) error

	Close() error
}
