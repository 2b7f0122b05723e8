// File: pool/bufferpool_test.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolReusesReleasedBuffer(t *testing.T) {
	p := New()
	r1 := p.Get(128, -1)
	r1.Release()

	r2 := p.Get(64, -1)
	assert.GreaterOrEqual(t, cap(r2.Data), 128, "buffer capacity too small; reuse failed")

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.TotalAlloc)
	assert.Equal(t, int64(1), stats.TotalFree)
	assert.Equal(t, int64(1), stats.InUse)
}

func TestBufferPoolGetAllocatesFreshWhenShardEmpty(t *testing.T) {
	p := New()
	r := p.Get(32, -1)
	require.Len(t, r.Data, 32)
	assert.True(t, r.Writable)
	assert.Equal(t, -1, r.NUMA)
	assert.Same(t, p, r.Pool.(*BufferPool))

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.TotalAlloc)
	assert.Equal(t, int64(0), stats.TotalFree)
	assert.Equal(t, int64(1), stats.InUse)
}

func TestBufferPoolGetAllocatesFreshWhenRecycledTooSmall(t *testing.T) {
	p := New()
	r1 := p.Get(16, 2)
	r1.Release()

	r2 := p.Get(256, 2)
	require.Len(t, r2.Data, 256)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.TotalAlloc, "undersized recycled buffer must trigger a fresh allocation")
}

func TestBufferPoolShardsByNUMANode(t *testing.T) {
	p := New()
	r0 := p.Get(64, 0)
	r0.Release()

	// A Get on a different NUMA node must not pull from node 0's free list,
	// even though a same-sized buffer is sitting there idle.
	r1 := p.Get(64, 1)
	_ = r1

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.TotalAlloc, "distinct NUMA shards must not share a free list")
}

func TestBufferPoolPutDropsWhenShardFull(t *testing.T) {
	p := New()
	// Hold every buffer before releasing any, so the shard fills to
	// freeListDepth and the last four Puts must drop rather than block.
	releases := make([]func(), 0, freeListDepth+4)
	for i := 0; i < freeListDepth+4; i++ {
		r := p.Get(8, 5)
		releases = append(releases, r.Release)
	}
	for _, release := range releases {
		release()
	}

	stats := p.Stats()
	assert.Equal(t, int64(freeListDepth+4), stats.TotalFree)
	assert.Equal(t, int64(0), stats.InUse)
}
