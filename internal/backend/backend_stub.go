//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd
// +build !linux,!darwin,!dragonfly,!freebsd,!netbsd,!openbsd

// File: internal/backend/backend_stub.go
// Author: momentics <momentics@gmail.com>
//
// The spec targets kqueue (BSD/Darwin) and epoll (Linux) only; every other
// platform gets a stub that reports unsupported rather than a half-built
// third implementation.

package backend

import "github.com/cyclemux/cyclemux/api"

// New reports that no kernel event backend is available on this platform.
func New() (api.Backend, error) {
	return nil, api.ErrNotSupported
}
