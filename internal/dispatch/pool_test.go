// File: internal/dispatch/pool_test.go
// Author: momentics <momentics@gmail.com>

package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllSubmittedCallbacks(t *testing.T) {
	p := NewPool(4, -1)
	defer p.Close()

	var n int64
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&n))
}

func TestPoolSubmitAfterCloseReturnsErrClosed(t *testing.T) {
	p := NewPool(1, -1)
	p.Close()
	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoolCloseWaitsForQueuedWork(t *testing.T) {
	p := NewPool(1, -1)

	var ran int32
	require.NoError(t, p.Submit(func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
	}))
	p.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran), "Close must not return before queued work finishes")
}

func TestPoolCloseDrainsLocalQueueBacklog(t *testing.T) {
	p := NewPool(1, -1)

	var n int64
	for i := 0; i < localQueueDepth+8; i++ {
		require.NoError(t, p.Submit(func() { atomic.AddInt64(&n, 1) }))
	}
	p.Close()
	assert.Equal(t, int64(localQueueDepth+8), atomic.LoadInt64(&n), "Close must drain both the local queue and the global overflow channel")
}

func TestNewPoolClampsNonPositiveWorkerCount(t *testing.T) {
	p := NewPool(0, -1)
	defer p.Close()
	require.NoError(t, p.Submit(func() {}))
}

func TestNewPoolPinsWorkersWhenNUMARequested(t *testing.T) {
	// numaNode >= 0 makes each worker attempt a real CPU pin via
	// affinity.Pin before it starts serving work; Pool must run the
	// callback whether that pin succeeds or silently fails.
	p := NewPool(1, 0)
	defer p.Close()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}
