// File: internal/dispatch/ring.go
// Author: momentics <momentics@gmail.com>
//
// SampleRing is a bounded, power-of-two-sized circular buffer with atomic
// head/tail and cache-line padding between them, grounded on the teacher's
// internal/concurrency/ring.go RingBuffer[T]. It keeps the lock-free
// single-producer/single-consumer contract (renamed from the generic
// api.Ring[T] FIFO role to this package's narrower use: the cycle owner is
// the sole producer, and a single debug/metrics reader is the sole
// consumer), which is exactly the access pattern control.Control's
// recent-cycle history needs.

package dispatch

import (
	"sync/atomic"

	"github.com/cyclemux/cyclemux/api"
)

// SampleRing is a lock-free single-producer/single-consumer ring buffer of
// fixed, power-of-two capacity. Overwrites the oldest sample once full.
type SampleRing[T any] struct {
	data []T
	mask uint64
	head atomic.Uint64
	_    [64]byte
	tail atomic.Uint64
	_    [64]byte
}

// NewSampleRing allocates a ring of the given power-of-two size.
func NewSampleRing[T any](size uint64) *SampleRing[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("dispatch: SampleRing size must be a power of two")
	}
	return &SampleRing[T]{data: make([]T, size), mask: size - 1}
}

// Push records item, overwriting the oldest sample once the ring is full.
func (r *SampleRing[T]) Push(item T) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.data)) {
		r.head.Store(head + 1)
	}
	r.data[tail&r.mask] = item
	r.tail.Store(tail + 1)
}

// Snapshot returns the currently retained samples, oldest first.
func (r *SampleRing[T]) Snapshot() []T {
	head := r.head.Load()
	tail := r.tail.Load()
	n := tail - head
	if n > uint64(len(r.data)) {
		n = uint64(len(r.data))
	}
	out := make([]T, 0, n)
	for i := uint64(0); i < n; i++ {
		out = append(out, r.data[(head+i)&r.mask])
	}
	return out
}

// Len returns the number of retained samples.
func (r *SampleRing[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed buffer capacity, satisfying api.Ring[T].
func (r *SampleRing[T]) Cap() int {
	return len(r.data)
}

// Enqueue adapts Push to the api.Ring[T] contract: always succeeds, since
// SampleRing overwrites the oldest sample rather than rejecting new ones.
func (r *SampleRing[T]) Enqueue(item T) bool {
	r.Push(item)
	return true
}

// Dequeue removes and returns the oldest retained sample, satisfying
// api.Ring[T]. Not used by the cycle-recording path (which only Pushes and
// Snapshots), but kept so SampleRing is a genuine api.Ring[T] rather than a
// lookalike with an incompatible shape.
func (r *SampleRing[T]) Dequeue() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	item := r.data[head&r.mask]
	r.head.Store(head + 1)
	return item, true
}

var _ api.Ring[int] = (*SampleRing[int])(nil)
