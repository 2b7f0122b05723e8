//go:build !linux
// +build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Darwin/BSD/other stub: these platforms have no portable equivalent of
// sched_setaffinity exposed through golang.org/x/sys/unix, and cgo-based
// thread_policy_set bindings are out of scope here. Pin reports the
// condition rather than silently no-op, so callers relying on pinning for
// correctness (not just a performance hint) see it. Unpin returns nil,
// since a failed Pin leaves nothing pinned.

package affinity

import "errors"

func pinCurrentThread(cpuID int) error {
	return errors.New("affinity: CPU pinning not supported on this platform")
}

func unpinCurrentThread() error {
	return errors.New("affinity: CPU pinning not supported on this platform")
}
