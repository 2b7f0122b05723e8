//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux affinity via sched_setaffinity(2), grounded on golang.org/x/sys/unix
// rather than cgo: unix.SchedSetaffinity/SchedGetaffinity wrap the syscall
// directly, so pinning the cycle-owning thread no longer requires a C
// toolchain at build time.

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func pinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

func unpinCurrentThread() error {
	defer runtime.UnlockOSThread()
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < runtime.NumCPU(); i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}
