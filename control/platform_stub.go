//go:build !linux
// +build !linux

// control/platform_stub.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux platform probes: only the portable runtime info is available.

package control

import "runtime"

// RegisterPlatformProbes sets the platform debug metrics available without
// Linux-specific procfs/sysfs access.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.os", func() any {
		return runtime.GOOS
	})
}
