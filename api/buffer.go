// File: api/buffer.go
// Package api defines Resource, the borrowed-buffer contract between a
// caller and a Channel, and BufferPool, the optional allocator examples and
// tests use to produce Resources to acquire.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "sync/atomic"

// Resource is an opaque buffer descriptor: a byte span owned by an external
// caller for the lifetime of a Channel's acquired resource, plus a
// writability flag (input channels require a writable span; output channels
// accept any span) and a shared reference count incremented by Channel
// acquire and decremented on release.
type Resource struct {
	Data     []byte
	Writable bool
	NUMA     int
	Pool     Releaser

	refs *int32
}

// Releaser decouples Resource release from any particular pool implementation.
type Releaser interface {
	Put(Resource)
}

// NewResource wraps a byte slice as a Resource with a fresh reference count.
func NewResource(data []byte, writable bool) Resource {
	var refs int32
	return Resource{Data: data, Writable: writable, NUMA: -1, refs: &refs}
}

// Bytes returns the full byte slice backing this Resource.
func (r Resource) Bytes() []byte { return r.Data }

// NUMANode returns the NUMA node this Resource was allocated on, or -1.
func (r Resource) NUMANode() int { return r.NUMA }

// Len returns the length of the backing slice.
func (r Resource) Len() int { return len(r.Data) }

// Slice returns a new Resource view over [from:to) sharing the same
// reference count and underlying memory.
func (r Resource) Slice(from, to int) Resource {
	if from < 0 || to > len(r.Data) || from > to {
		return Resource{NUMA: r.NUMA, Pool: r.Pool, Writable: r.Writable, refs: r.refs}
	}
	return Resource{
		Data:     r.Data[from:to],
		Writable: r.Writable,
		NUMA:     r.NUMA,
		Pool:     r.Pool,
		refs:     r.refs,
	}
}

// Acquire increments the shared reference count; called when a Channel
// binds this Resource as its active acquisition.
func (r Resource) Acquire() {
	if r.refs != nil {
		atomic.AddInt32(r.refs, 1)
	}
}

// Release decrements the shared reference count and, when it reaches zero,
// returns the Resource to its owning pool (if any).
func (r Resource) Release() {
	if r.refs == nil {
		return
	}
	if atomic.AddInt32(r.refs, -1) <= 0 && r.Pool != nil {
		r.Pool.Put(r)
	}
}

// BufferPool provides NUMA-aware Resource allocation for examples and tests
// that need to supply fresh buffers to Channel.Acquire.
type BufferPool interface {
	Get(size int, numaPreferred int) Resource
	Put(r Resource)
	Stats() BufferPoolStats
}

// BufferPoolStats summarizes pool usage.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}
