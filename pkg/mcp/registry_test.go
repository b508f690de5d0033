package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeServersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp_servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistry_LoadFile(t *testing.T) {
	path := writeServersFile(t, `
servers:
  calc:
    command: ["python", "calc.py"]
  search:
    url: https://search.example/rpc
`)

	r := NewRegistry()
	require.NoError(t, r.LoadFile(path))

	assert.Equal(t, []string{"calc", "search"}, r.ListIDs())

	calc, ok := r.Get("calc")
	require.True(t, ok)
	assert.Equal(t, TransportStdio, calc.Transport)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_LoadFile_SkipsBadEntries(t *testing.T) {
	path := writeServersFile(t, `
servers:
  ok:
    command: ["echo"]
  broken:
    transport: nope
`)

	r := NewRegistry()
	require.NoError(t, r.LoadFile(path))
	assert.Equal(t, []string{"ok"}, r.ListIDs())
}

func TestRegistry_Load_EnvOverride(t *testing.T) {
	path := writeServersFile(t, `
servers:
  env-server:
    command: ["echo"]
`)
	t.Setenv(EnvServersConfig, path)

	r := NewRegistry()
	require.NoError(t, r.Load())
	assert.Equal(t, []string{"env-server"}, r.ListIDs())
}

func TestRegistry_Load_NoFileIsEmpty(t *testing.T) {
	t.Setenv(EnvServersConfig, "")
	t.Chdir(t.TempDir())

	r := NewRegistry()
	require.NoError(t, r.Load())
	assert.Empty(t, r.ListIDs())
}

func TestDefaultRegistry_SingletonAndReset(t *testing.T) {
	path := writeServersFile(t, `
servers:
  one:
    command: ["echo"]
`)
	t.Setenv(EnvServersConfig, path)
	ResetForTest()
	t.Cleanup(ResetForTest)

	first, err := DefaultRegistry()
	require.NoError(t, err)
	second, err := DefaultRegistry()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"one"}, first.ListIDs())
}

func TestRegistry_LoadFile_Unparseable(t *testing.T) {
	path := writeServersFile(t, "servers: [broken")
	r := NewRegistry()
	assert.Error(t, r.LoadFile(path))
}
