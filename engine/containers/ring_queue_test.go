package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](4)
	assert.True(t, q.IsEmpty())

	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)
	assert.Equal(t, 3, q.Len())

	front, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, front)
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.True(t, q.IsEmpty())

	_, ok = q.Dequeue()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestRingQueueGrowsPreservingOrder(t *testing.T) {
	q := NewRingQueue[int](2)

	// Wrap the read index before forcing growth.
	q.Enqueue(0)
	q.Enqueue(1)
	_, _ = q.Dequeue()
	for i := 2; i < 20; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 19, q.Len())

	for want := 1; want < 20; want++ {
		got, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	assert.True(t, q.IsEmpty())
}

func TestRingQueueZeroCapacityClamped(t *testing.T) {
	q := NewRingQueue[string](0)
	q.Enqueue("a")
	q.Enqueue("b")

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", got)
	got, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", got)
}
