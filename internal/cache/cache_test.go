package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHonoursTTL(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m := New[string](DefaultPolicy, c).Put("conv", "v1")

	c.Advance(DefaultPolicy.TTL - time.Millisecond)
	v, ok := m.Get("conv")
	require.True(t, ok, "entry younger than TTL must hit")
	assert.Equal(t, "v1", v)

	c.Advance(time.Millisecond)
	_, ok = m.Get("conv")
	assert.False(t, ok, "entry exactly TTL old must miss")
}

func TestPutRefreshesTimestamp(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m := New[int](Policy{TTL: time.Minute, MaxSize: 10}, c).Put("k", 1)

	c.Advance(50 * time.Second)
	m = m.Put("k", 2)
	c.Advance(50 * time.Second)

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSizeBoundEvictsFirstInserted(t *testing.T) {
	m := New[int](DefaultPolicy, clock.NewFake(time.Unix(0, 0)))
	for i := 0; i <= DefaultPolicy.MaxSize; i++ {
		m = m.Put(fmt.Sprintf("k%d", i), i)
	}

	assert.Equal(t, DefaultPolicy.MaxSize, m.Len())
	_, ok := m.Get("k0")
	assert.False(t, ok, "first inserted key must be evicted")
	for i := 1; i <= DefaultPolicy.MaxSize; i++ {
		_, ok := m.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should be present", i)
	}
}

func TestEvictionIsFIFONotLRU(t *testing.T) {
	m := New[int](Policy{MaxSize: 2}, nil)
	m = m.Put("a", 1).Put("b", 2)

	// Reading and re-putting "a" does not protect it.
	_, _ = m.Get("a")
	m = m.Put("a", 10)
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	m = m.Put("c", 3)
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c"}, m.Keys())
}

func TestPutIsCopyOnWrite(t *testing.T) {
	before := New[string](Policy{MaxSize: 1}, nil).Put("a", "x")
	after := before.Put("b", "y")

	v, ok := before.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = before.Get("b")
	assert.False(t, ok)

	_, ok = after.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, before.Len())
}

func TestDeleteAndClear(t *testing.T) {
	m := New[int](DefaultPolicy, nil).Put("a", 1).Put("b", 2)
	d := m.Delete("a")

	assert.Equal(t, []string{"b"}, d.Keys())
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, d, d.Delete("missing"))

	cleared := m.Clear()
	assert.Zero(t, cleared.Len())
	_, ok := cleared.Get("b")
	assert.False(t, ok)
}

func TestZeroValueIsUsable(t *testing.T) {
	var m Map[string]
	_, ok := m.Get("x")
	assert.False(t, ok)

	m = m.Put("x", "y")
	v, ok := m.Get("x")
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}
