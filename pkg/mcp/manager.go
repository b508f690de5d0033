package mcp

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// clientKey identifies one cached client. Owner is the agent name; two
// agents referencing the same server id get independent clients so one
// agent's misbehaving subprocess cannot stall another's tool calls. An
// empty owner is the shared client used by discovery tooling.
type clientKey struct {
	ServerID string
	Owner    string
}

// Manager is the process-wide MCP client cache.
type Manager struct {
	mu      sync.Mutex
	clients map[clientKey]Client
	tokens  TokenStore
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// DefaultManager returns the process-wide manager.
func DefaultManager() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(NewMemoryTokenStore())
	})
	return defaultManager
}

func NewManager(tokens TokenStore) *Manager {
	return &Manager{
		clients: make(map[clientKey]Client),
		tokens:  tokens,
	}
}

// SetTokenStore swaps the token store used by clients created after this
// call. Intended for startup wiring, before any client exists.
func (m *Manager) SetTokenStore(tokens TokenStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
}

// Get returns the cached client for (cfg.ID, owner), creating one for the
// config's transport if missing. Repeated calls with the same key return
// the identical instance.
func (m *Manager) Get(cfg *ServerConfig, owner string) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := clientKey{ServerID: cfg.ID, Owner: owner}
	if client, exists := m.clients[key]; exists {
		return client, nil
	}

	var client Client
	switch cfg.Transport {
	case TransportStdio:
		client = NewStdioClient(cfg)
	case TransportSSE, TransportHTTP:
		client = NewHTTPClient(cfg, m.tokens)
	default:
		return nil, fmt.Errorf("unknown transport %q for server %q", cfg.Transport, cfg.ID)
	}

	m.clients[key] = client
	slog.Debug("created MCP client", "server", cfg.ID, "owner", owner, "transport", cfg.Transport)
	return client, nil
}

// Remove drops the cached client for (serverID, owner) so the next Get
// builds a fresh one. Used after a ReconnectError.
func (m *Manager) Remove(serverID, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := clientKey{ServerID: serverID, Owner: owner}
	if client, exists := m.clients[key]; exists {
		if err := client.Close(); err != nil {
			slog.Debug("error closing removed MCP client", "server", serverID, "owner", owner, "error", err)
		}
		delete(m.clients, key)
	}
}

// CloseAll closes every cached client concurrently. Per-client errors are
// logged and swallowed; CloseAll itself never fails.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := make(map[clientKey]Client, len(m.clients))
	for key, client := range m.clients {
		clients[key] = client
	}
	m.clients = make(map[clientKey]Client)
	m.mu.Unlock()

	var g errgroup.Group
	for key, client := range clients {
		g.Go(func() error {
			if err := client.Close(); err != nil {
				slog.Warn("error closing MCP client",
					"server", key.ServerID,
					"owner", key.Owner,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Count reports the number of cached clients.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
