package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentship/agentship/pkg/protocol"
)

func TestThreadID(t *testing.T) {
	assert.Equal(t, "alice:chat-1", ThreadID("alice", "chat-1"))
}

func TestMemoryStore_AppendAndHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.EnsureSession(ctx, "alice", "s1"))

	first := protocol.Message{Role: protocol.RoleUser, Content: "hello"}
	second := protocol.Message{Role: protocol.RoleAssistant, Content: "hi there"}
	require.NoError(t, store.Append(ctx, "alice", "s1", first, second))

	history, err := store.History(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi there", history[1].Content)

	// A later turn sees the prior one.
	require.NoError(t, store.Append(ctx, "alice", "s1",
		protocol.Message{Role: protocol.RoleUser, Content: "again"}))
	history, err = store.History(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestMemoryStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Append(ctx, "alice", "s1",
		protocol.Message{Role: protocol.RoleUser, Content: "for alice"}))
	require.NoError(t, store.Append(ctx, "bob", "s1",
		protocol.Message{Role: protocol.RoleUser, Content: "for bob"}))

	aliceHist, err := store.History(ctx, "alice", "s1")
	require.NoError(t, err)
	bobHist, err := store.History(ctx, "bob", "s1")
	require.NoError(t, err)

	require.Len(t, aliceHist, 1)
	require.Len(t, bobHist, 1)
	assert.Equal(t, "for alice", aliceHist[0].Content)
	assert.Equal(t, "for bob", bobHist[0].Content)
}

func TestMemoryStore_HistoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Append(ctx, "u", "s",
		protocol.Message{Role: protocol.RoleUser, Content: "original"}))

	history, err := store.History(ctx, "u", "s")
	require.NoError(t, err)
	history[0].Content = "mutated"

	fresh, err := store.History(ctx, "u", "s")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh[0].Content)
}

func TestMemoryStore_EmptyHistory(t *testing.T) {
	store := NewMemoryStore()
	history, err := store.History(context.Background(), "u", "never-seen")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFromEnv_DefaultsToMemory(t *testing.T) {
	t.Setenv(EnvShortTermMemory, "")
	store, err := FromEnv()
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
}

func TestFromEnv_DatabaseRequiresURI(t *testing.T) {
	t.Setenv(EnvShortTermMemory, "Database")
	t.Setenv(EnvSessionStoreURI, "")
	_, err := FromEnv()
	assert.Error(t, err)
}
