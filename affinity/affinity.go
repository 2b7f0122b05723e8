// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral CPU/NUMA affinity binding for the goroutine that runs an
// Array's cycle. Pinning the cycle-owning OS thread to one core keeps the
// kernel event descriptor's interrupt/softirq affinity and the consuming
// goroutine on the same cache domain, which is the main payoff of pinning a
// tight kqueue/epoll wait loop. Platform-specific pinning lives in
// affinity_linux.go / affinity_stub.go behind build tags.

package affinity

import (
	"sync"

	"github.com/cyclemux/cyclemux/api"
)

// ThreadAffinity binds the calling goroutine's underlying OS thread via
// runtime.LockOSThread plus a platform pin call.
type ThreadAffinity struct {
	mu     sync.Mutex
	desc   api.AffinityDescriptor
	locked bool
}

// New returns an unpinned ThreadAffinity handle.
func New() *ThreadAffinity {
	return &ThreadAffinity{desc: api.AffinityDescriptor{CPUID: -1, NUMAID: -1, Scope: api.ScopeGoroutine}}
}

// Pin locks the calling goroutine to its current OS thread and pins that
// thread to cpuID. numaID is recorded for reporting only; Go's scheduler
// gives no portable NUMA-allocation control.
func (t *ThreadAffinity) Pin(cpuID, numaID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := pinCurrentThread(cpuID); err != nil {
		return api.AllocationError("affinity: pin failed").WithContext("cpu", cpuID).WithContext("cause", err.Error())
	}
	t.locked = true
	t.desc = api.AffinityDescriptor{CPUID: cpuID, NUMAID: numaID, Scope: api.ScopeGoroutine, Pinned: true}
	return nil
}

// Unpin releases the thread pin and the goroutine-to-thread lock.
func (t *ThreadAffinity) Unpin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.locked {
		return nil
	}
	err := unpinCurrentThread()
	t.locked = false
	t.desc = api.AffinityDescriptor{CPUID: -1, NUMAID: -1, Scope: api.ScopeGoroutine}
	if err != nil {
		return api.AllocationError("affinity: unpin failed").WithContext("cause", err.Error())
	}
	return nil
}

// Get reports the currently pinned CPU/NUMA pair, or (-1,-1) if unpinned.
func (t *ThreadAffinity) Get() (cpuID, numaID int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.CPUID, t.desc.NUMAID, nil
}

// Scope always reports goroutine scope: ThreadAffinity pins the OS thread
// a single goroutine is locked to, not the whole process.
func (t *ThreadAffinity) Scope() api.AffinityScope { return api.ScopeGoroutine }

// ImmutableDescriptor returns a snapshot of the current binding state.
func (t *ThreadAffinity) ImmutableDescriptor() api.AffinityDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc
}

var _ api.Affinity = (*ThreadAffinity)(nil)
