package mcp

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// EnvServersConfig overrides the servers file location.
const EnvServersConfig = "MCP_SERVERS_CONFIG"

// defaultServerFiles are tried in order when the env override is unset.
var defaultServerFiles = []string{
	"mcp_servers.yaml",
	"mcp_servers.yml",
	"mcp_servers.json",
}

// Registry holds the loaded MCP server definitions. Read-only after load.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]ServerConfig
	loaded  bool
}

var (
	defaultRegistry   *Registry
	defaultRegistryMu sync.Mutex
)

// DefaultRegistry returns the process-wide registry, loading it on first
// use. A missing servers file yields an empty registry, not an error.
func DefaultRegistry() (*Registry, error) {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()

	if defaultRegistry != nil {
		return defaultRegistry, nil
	}

	r := NewRegistry()
	if err := r.Load(); err != nil {
		return nil, err
	}
	defaultRegistry = r
	return defaultRegistry, nil
}

// ResetForTest drops the singleton so tests can load fixture files.
func ResetForTest() {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()
	defaultRegistry = nil
}

func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]ServerConfig)}
}

// Load reads the servers file resolved from MCP_SERVERS_CONFIG or the
// standard filenames in the working directory. No file at all is fine.
func (r *Registry) Load() error {
	if path := os.Getenv(EnvServersConfig); path != "" {
		return r.LoadFile(path)
	}
	for _, path := range defaultServerFiles {
		if _, err := os.Stat(path); err == nil {
			return r.LoadFile(path)
		}
	}

	r.mu.Lock()
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// LoadFile loads one servers file. Unparseable files fail the load; invalid
// individual entries are skipped with a warning.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read MCP servers file: %w", err)
	}

	servers, skipped := parseServersFile(data)
	if servers == nil {
		return skipped[0]
	}
	for _, skipErr := range skipped {
		slog.Warn("skipping invalid MCP server entry", "path", path, "error", skipErr)
	}

	r.mu.Lock()
	r.servers = servers
	r.loaded = true
	r.mu.Unlock()

	slog.Info("loaded MCP server registry", "path", path, "servers", len(servers))
	return nil
}

// Get returns the server config by id.
func (r *Registry) Get(id string) (*ServerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.servers[id]
	if !ok {
		return nil, false
	}
	return &cfg, true
}

// ListIDs returns the known server ids, sorted.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
