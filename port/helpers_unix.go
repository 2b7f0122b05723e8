// File: port/helpers_unix.go
// Author: momentics <momentics@gmail.com>
//
// Port allocators: the handful of ways a descriptor enters the cycle engine.
// Pipe and socketpair are built directly with golang.org/x/sys/unix; wrapping
// a pre-opened net.Conn borrows the fd-extraction idiom from
// runZeroInc-sockstats's prometheus exporter (github.com/higebu/netfd).

package port

import (
	"net"

	"github.com/cyclemux/cyclemux/api"
	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// Pipe allocates an anonymous, non-blocking pipe and returns a read Port and
// a write Port, each with a single latch on its own side.
func Pipe() (read, write *Port, err error) {
	var fds [2]int
	if e := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); e != nil {
		return nil, nil, api.NewPortError(api.CallPipe, e)
	}
	read = New(fds[0], api.TypologyPipe, api.FreightOctets, 1, 0)
	write = New(fds[1], api.TypologyPipe, api.FreightOctets, 0, 1)
	return read, write, nil
}

// Socketpair allocates an AF_UNIX socket pair and wraps each end in its own
// Port carrying freight, latched 1/1 (each end is both readable and
// writable, so one Port can be shared by an input and an output Channel).
func Socketpair(typ int, freight api.Freight) (a, b *Port, err error) {
	fds, e := unix.Socketpair(unix.AF_UNIX, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if e != nil {
		return nil, nil, api.NewPortError(api.CallSocketpair, e)
	}
	a = New(fds[0], api.TypologySocket, freight, 1, 1)
	b = New(fds[1], api.TypologySocket, freight, 1, 1)
	return a, b, nil
}

// WrapConn extracts the raw descriptor from an already-connected net.Conn
// (e.g. one returned by net.Dial or net.Listener.Accept) and wraps it as a
// socket Port. The caller must not continue to use conn for I/O afterward —
// ownership of the descriptor transfers to the Port.
func WrapConn(conn net.Conn, freight api.Freight) *Port {
	fd := netfd.GetFdFromConn(conn)
	return New(fd, api.TypologySocket, freight, 1, 1)
}

// Listener wraps a bound, listening socket descriptor as an input-only Port
// whose I/O operation is accept rather than read.
func Listener(conn net.Conn) *Port {
	fd := netfd.GetFdFromConn(conn)
	return New(fd, api.TypologySocket, api.FreightSockets, 1, 0)
}
