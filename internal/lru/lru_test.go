package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushEvictsOldestOverCapacity(t *testing.T) {
	idx := New[int, string](2)
	assert.Nil(t, idx.Push(1, "a"))
	assert.Nil(t, idx.Push(2, "b"))
	evicted := idx.Push(3, "c")
	require.Len(t, evicted, 1)
	assert.Equal(t, 1, evicted[0])
	assert.Equal(t, 2, idx.Len())
}

func TestPushExistingKeyUpdatesValueWithoutEviction(t *testing.T) {
	idx := New[int, string](2)
	idx.Push(1, "a")
	idx.Push(2, "b")
	evicted := idx.Push(1, "a-updated")
	assert.Nil(t, evicted)

	v, ok := idx.Get(1)
	require.True(t, ok)
	assert.Equal(t, "a-updated", v)
	assert.Equal(t, 2, idx.Len())
}

func TestGetDoesNotDisturbOrder(t *testing.T) {
	idx := New[int, string](2)
	idx.Push(1, "a")
	idx.Push(2, "b")

	_, ok := idx.Get(1)
	require.True(t, ok)

	k, _, ok := idx.PeekOldest()
	require.True(t, ok)
	assert.Equal(t, 1, k, "Get must not move the key to the front like Push does")
}

func TestPeekOldestThenPopOldest(t *testing.T) {
	idx := New[int, string](0)
	idx.Push(1, "a")
	idx.Push(2, "b")

	k, v, ok := idx.PeekOldest()
	require.True(t, ok)
	assert.Equal(t, 1, k)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, idx.Len(), "peek must not remove")

	k, v, ok = idx.PopOldest()
	require.True(t, ok)
	assert.Equal(t, 1, k)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, idx.Len())
}

func TestRemove(t *testing.T) {
	idx := New[int, string](0)
	idx.Push(1, "a")
	idx.Push(2, "b")

	v, ok := idx.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, idx.Len())

	_, ok = idx.Remove(1)
	assert.False(t, ok)
}

func TestUnboundedCapacityNeverEvicts(t *testing.T) {
	idx := New[int, int](0)
	for i := 0; i < 500; i++ {
		evicted := idx.Push(i, i)
		assert.Nil(t, evicted)
	}
	assert.Equal(t, 500, idx.Len())
}

func TestValuesAndKeysMostRecentFirst(t *testing.T) {
	idx := New[int, string](0)
	idx.Push(1, "a")
	idx.Push(2, "b")
	idx.Push(3, "c")

	assert.Equal(t, []int{3, 2, 1}, idx.Keys())
	assert.Equal(t, []string{"c", "b", "a"}, idx.Values())
}
