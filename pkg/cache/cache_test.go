package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ interface{}) { evicted = append(evicted, key) }})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", "value_d")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, k)
	}
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Delete("a")
	c.Delete("missing")

	assert.Equal(t, 1, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)

	c.Clear()
	assert.Zero(t, c.Len())
	_, found = c.Get("b")
	assert.False(t, found)
}

func TestLRUCache_Update(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", "value1")
	c.Set("a", "value2")

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value2", val)
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_Stats(t *testing.T) {
	c := New(Options{})
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, Stats{Length: 1, HitCount: 2, MissCount: 1}, s)
	assert.InDelta(t, 2.0/3.0, s.HitRate(), 1e-9)
	assert.Zero(t, Stats{}.HitRate())
}

func TestLRUCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Get("key1")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	// A smaller cache keeps the most recently used entries.
	c2 := New(Options{MaxSize: 1})
	require.NoError(t, c2.Load(&buf))
	assert.Equal(t, 1, c2.Len())

	val, found := c2.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", val)

	assert.Error(t, c2.Load(bytes.NewReader([]byte{0xc1})))
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.cache")

	c := New(Options{})
	require.NoError(t, LoadFromFile(c, path), "a missing file is not an error")
	c.Set("k", "v")
	require.NoError(t, PersistToFile(c, path))

	restored := New(Options{})
	require.NoError(t, LoadFromFile(restored, path))
	val, found := restored.Get("k")
	require.True(t, found)
	assert.Equal(t, "v", val)
}

func TestContentKey(t *testing.T) {
	a := ContentKey("clamp", "{ return v; }")
	assert.Len(t, a, 16)
	assert.Equal(t, a, ContentKey("clamp", "{ return v; }"))
	assert.NotEqual(t, a, ContentKey("clamp", "{ return 0; }"))
	assert.NotEqual(t, ContentKey("ab", "c"), ContentKey("a", "bc"))
}
