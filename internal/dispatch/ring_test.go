// File: internal/dispatch/ring_test.go
// Author: momentics <momentics@gmail.com>

package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleRingPushSnapshotOrdersOldestFirst(t *testing.T) {
	r := NewSampleRing[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	assert.Equal(t, []int{1, 2, 3}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 4, r.Cap())
}

func TestSampleRingOverwritesOldestOnceFull(t *testing.T) {
	r := NewSampleRing[int](4)
	for i := 0; i < 6; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{2, 3, 4, 5}, r.Snapshot())
	assert.Equal(t, 4, r.Len())
}

func TestSampleRingNewPanicsOnNonPowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { NewSampleRing[int](3) })
}

func TestSampleRingEnqueueDequeueFIFO(t *testing.T) {
	r := NewSampleRing[int](4)
	require.True(t, r.Enqueue(10))
	require.True(t, r.Enqueue(20))

	v, ok := r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, r.Len())

	v, ok = r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 20, v)

	_, ok = r.Dequeue()
	assert.False(t, ok, "dequeue on empty ring must report false")
}
