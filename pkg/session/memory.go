package session

import (
	"context"
	"sync"

	"github.com/agentship/agentship/pkg/protocol"
)

// MemoryStore keeps session history in process memory. History is lost on
// restart; used by default and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]protocol.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]protocol.Message)}
}

func (s *MemoryStore) EnsureSession(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ThreadID(userID, sessionID)
	if _, exists := s.sessions[key]; !exists {
		s.sessions[key] = nil
	}
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID, sessionID string) ([]protocol.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[ThreadID(userID, sessionID)]
	out := make([]protocol.Message, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, userID, sessionID string, messages ...protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ThreadID(userID, sessionID)
	s.sessions[key] = append(s.sessions[key], messages...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
