// File: port/syscall_unix.go
// Author: momentics <momentics@gmail.com>
//
// EINTR retry wrapper for syscalls issued through a Port. EAGAIN is never
// retried here — that is what the event machinery in internal/backend is
// for. The transfer operations in core/typology.go do not run their
// read/write/accept/recvmsg/sendmsg/recvfrom/sendto calls through this
// wrapper: they retry
// EINTR inline with no budget, and pass only their terminal error to Retry
// so that it is recorded on the Port.

package port

import (
	"github.com/cyclemux/cyclemux/api"
	"golang.org/x/sys/unix"
)

// EINTRBudget bounds how many consecutive EINTR results a single logical
// operation will absorb before giving up and recording the failure.
const EINTRBudget = 16

// Retry invokes fn, retrying while it returns EINTR, up to EINTRBudget
// attempts. Any terminal error other than EAGAIN is recorded on the Port
// under call and returned to the caller unchanged. EAGAIN is never recorded
// — it is an expected, transient result for a non-blocking descriptor, not
// a failure; the event machinery is what turns it back into readiness.
func (p *Port) Retry(call api.CallName, fn func() (int, error)) (int, error) {
	var n int
	var err error
	for attempt := 0; attempt < EINTRBudget; attempt++ {
		n, err = fn()
		if err != unix.EINTR {
			break
		}
	}
	if err != nil && err != unix.EAGAIN {
		p.recordError(call, err)
	}
	return n, err
}

// RetryVoid is Retry for syscalls with no byte-count result (shutdown,
// close, fcntl, setsockopt).
func (p *Port) RetryVoid(call api.CallName, fn func() error) error {
	_, err := p.Retry(call, func() (int, error) {
		return 0, fn()
	})
	return err
}
