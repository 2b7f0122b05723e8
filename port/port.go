// File: port/port.go
// Author: momentics <momentics@gmail.com>
//
// Port owns exactly one kernel file descriptor and the bookkeeping the core
// cycle needs to decide when to shutdown/close it. Grounded on the teacher's
// reactor descriptor wrapper plus the data model in the spec's Port section:
// a typology tag, a last-error/call-name pair, a freight tag, and a latches
// byte split into read-side and write-side nibbles.

package port

import (
	"sync"

	"github.com/cyclemux/cyclemux/api"
	"github.com/cyclemux/cyclemux/internal/logging"
	"github.com/rs/xid"
	"golang.org/x/sys/unix"
)

var log = logging.For("port")

const (
	readMask  = 0x0F
	writeMask = 0xF0
	writeBit  = 4
)

// Port owns one kernel descriptor, shared by up to one input and one output
// Channel. Safe for concurrent use: latch bookkeeping is mutex-guarded since
// two channels of opposite polarity may release concurrently.
type Port struct {
	mu sync.Mutex

	id       xid.ID
	fd       int
	typology api.Typology
	freight  api.Freight

	lastCall  api.CallName
	lastErrno error

	latches uint8
	leaked  bool
}

// New wraps an already-open descriptor. readers/writers seed the initial
// latch counts — 1/0 for an input-only channel, 0/1 for output-only, 1/1 for
// a socket pair sharing this Port.
func New(fd int, typology api.Typology, freight api.Freight, readers, writers int) *Port {
	return &Port{
		id:       xid.New(),
		fd:       fd,
		typology: typology,
		freight:  freight,
		latches:  uint8(readers&0x0F) | uint8((writers&0x0F)<<writeBit),
	}
}

// FD returns the raw descriptor, or -1 once closed.
func (p *Port) FD() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fd
}

// ID returns this Port's log-correlation identifier, assigned once at
// construction and stable for the Port's lifetime regardless of descriptor
// recycling.
func (p *Port) ID() xid.ID { return p.id }

func (p *Port) Typology() api.Typology { return p.typology }
func (p *Port) Freight() api.Freight   { return p.freight }

// LastError reports the most recent syscall failure recorded on this Port.
func (p *Port) LastError() (api.CallName, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCall, p.lastErrno
}

// Latches returns the raw read/write nibble pair, for diagnostics and tests.
func (p *Port) Latches() (read, write int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.latches & readMask), int(p.latches&writeMask) >> writeBit
}

// Leak marks the Port so that close is suppressed and zeroes both latch
// nibbles, so no later Unlatch issues shutdown or close — used when a
// descriptor is handed off to a collaborator outside the cycle engine's
// ownership (e.g. SCM_RIGHTS transfer).
func (p *Port) Leak() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaked = true
	p.latches = 0
}

// Shatter zeroes both latch nibbles without issuing shutdown or close — for
// a descriptor already known dead (observed EBADF, or inherited across a
// fork where the parent's copy must not affect the child's lifecycle).
func (p *Port) Shatter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latches = 0
}

// recordError stores the (callname, errno) pair and, for EBADF, zeroes the
// latches immediately so a later Unlatch cannot close an already-invalid or
// recycled descriptor.
func (p *Port) recordError(call api.CallName, err error) {
	p.mu.Lock()
	p.lastCall = call
	p.lastErrno = err
	if err == unix.EBADF {
		p.latches = 0
	}
	p.mu.Unlock()
	log.Debug("port syscall failed", "call", call, "err", err, "fd", p.fd, "port", p.id)
}

// Unlatch decrements one polarity's share of the descriptor: a negative
// delta decrements the read-side nibble, a positive delta the write-side
// nibble. When that side reaches zero on a socket carrying Octets or Ports,
// shutdown is issued for the corresponding direction; when both nibbles
// reach zero, close is issued (unless the Port was leaked).
func (p *Port) Unlatch(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latches == 0 {
		return
	}

	var polarity api.Polarity
	if delta < 0 {
		polarity = api.Input
		if p.latches&readMask > 0 {
			p.latches--
		}
	} else {
		polarity = api.Output
		if p.latches&writeMask > 0 {
			p.latches -= (1 << writeBit)
		}
	}

	sideZero := (polarity == api.Input && p.latches&readMask == 0) ||
		(polarity == api.Output && p.latches&writeMask == 0)

	if sideZero && p.typology == api.TypologySocket &&
		(p.freight == api.FreightOctets || p.freight == api.FreightPorts) {
		how := unix.SHUT_RD
		if polarity == api.Output {
			how = unix.SHUT_WR
		}
		if p.fd >= 0 {
			p.shutdownLocked(how)
		}
	}

	if p.latches == 0 && !p.leaked && p.fd >= 0 {
		p.closeLocked()
	}
}

func (p *Port) shutdownLocked(how int) {
	if err := unix.Shutdown(p.fd, how); err != nil && err != unix.ENOTCONN {
		p.lastCall = api.CallShutdown
		p.lastErrno = err
	}
}

func (p *Port) closeLocked() {
	err := unix.Close(p.fd)
	if err != nil {
		p.lastCall = api.CallClose
		p.lastErrno = err
	}
	p.fd = -1
}
