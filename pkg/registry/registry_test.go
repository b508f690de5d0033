package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRegistry_RegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	got, exists := r.Get("a")
	assert.True(t, exists)
	assert.Equal(t, 1, got)

	_, exists = r.Get("missing")
	assert.False(t, exists)

	assert.Equal(t, 2, r.Count())
}

func TestBaseRegistry_DuplicateRegister(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("x", "first"))
	err := r.Register("x", "second")
	assert.Error(t, err)

	got, _ := r.Get("x")
	assert.Equal(t, "first", got)
}

func TestBaseRegistry_GetOrCreate(t *testing.T) {
	r := NewBaseRegistry[*struct{ n int }]()

	calls := 0
	create := func() (*struct{ n int }, error) {
		calls++
		return &struct{ n int }{n: calls}, nil
	}

	first, err := r.GetOrCreate("shared", create)
	require.NoError(t, err)
	second, err := r.GetOrCreate("shared", create)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestBaseRegistry_GetOrCreate_Error(t *testing.T) {
	r := NewBaseRegistry[int]()

	_, err := r.GetOrCreate("bad", func() (int, error) {
		return 0, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestBaseRegistry_Concurrent(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetOrCreate("k", func() (int, error) { return 42, nil })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, exists := r.Get("k")
	require.True(t, exists)
	assert.Equal(t, 42, got)
}

func TestBaseRegistry_RemoveAndClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	require.NoError(t, r.Remove("a"))
	_, exists := r.Get("a")
	assert.False(t, exists)

	assert.Error(t, r.Remove("a"))

	r.Clear()
	assert.Equal(t, 0, r.Count())
}

func TestBaseRegistry_Names(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("beta", 2))
	require.NoError(t, r.Register("alpha", 1))

	assert.ElementsMatch(t, []string{"alpha", "beta"}, r.Names())
}
