// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// NUMA-sharded Resource pool: one free-list channel per NUMA node, grounded
// on the teacher's baseBufferPool[T] (pool/base_bufferpool.go), adapted from
// a generic api.Buffer factory to api.Resource — the plain byte-span +
// refcount type Channel.Acquire expects.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/cyclemux/cyclemux/api"
)

const freeListDepth = 1024

// BufferPool is a NUMA-sharded Resource allocator implementing api.BufferPool.
type BufferPool struct {
	mu    sync.Mutex
	free  map[int]chan []byte
	alloc int64
	freed int64
	inUse int64
}

// New creates an empty BufferPool. Shards are created lazily per NUMA node
// on first Get/Put.
func New() *BufferPool {
	return &BufferPool{free: make(map[int]chan []byte)}
}

func (p *BufferPool) shard(numaPref int) chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.free[numaPref]
	if !ok {
		ch = make(chan []byte, freeListDepth)
		p.free[numaPref] = ch
	}
	return ch
}

// Get returns a Resource with at least size bytes of backing capacity,
// preferring a recycled buffer from numaPreferred's shard.
func (p *BufferPool) Get(size int, numaPreferred int) api.Resource {
	ch := p.shard(numaPreferred)
	select {
	case buf := <-ch:
		if cap(buf) < size {
			return p.alloc_(size, numaPreferred)
		}
		atomic.AddInt64(&p.inUse, 1)
		r := api.NewResource(buf[:size], true)
		r.NUMA = numaPreferred
		r.Pool = p
		return r
	default:
		return p.alloc_(size, numaPreferred)
	}
}

func (p *BufferPool) alloc_(size, numaPreferred int) api.Resource {
	atomic.AddInt64(&p.alloc, 1)
	atomic.AddInt64(&p.inUse, 1)
	r := api.NewResource(make([]byte, size), true)
	r.NUMA = numaPreferred
	r.Pool = p
	return r
}

// Put returns a Resource's backing buffer to its NUMA shard, or drops it if
// the shard is saturated.
func (p *BufferPool) Put(r api.Resource) {
	atomic.AddInt64(&p.freed, 1)
	atomic.AddInt64(&p.inUse, -1)
	ch := p.shard(r.NUMA)
	full := cap(r.Data)
	buf := r.Data[:full]
	select {
	case ch <- buf:
	default:
	}
}

// Stats reports cumulative allocation counters.
func (p *BufferPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: atomic.LoadInt64(&p.alloc),
		TotalFree:  atomic.LoadInt64(&p.freed),
		InUse:      atomic.LoadInt64(&p.inUse),
	}
}

var _ api.BufferPool = (*BufferPool)(nil)
