// File: core/channel.go
// Author: momentics <momentics@gmail.com>
//
// Channel is a polarized, attachable transfer endpoint. Its public surface
// (Acquire/Force/Transfer/Slice/SizeofTransfer/Terminate/Endpoint) is the
// caller-facing half of the cycle engine; the state/delta/events bitfields
// and ring/transfer-list links it carries are driven from array.go and
// delta.go: delta under the owning Array's lock, state and events by the
// goroutine running the cycle.

package core

import (
	"golang.org/x/sys/unix"

	"github.com/cyclemux/cyclemux/api"
	"github.com/cyclemux/cyclemux/port"
)

// Channel is a polarized endpoint of a Port, optionally attached to an
// Array's ring.
type Channel struct {
	arr      *Array
	ch       *port.Port
	polarity api.Polarity
	typ      ChannelType
	link     any

	ringPrev *Channel
	ringNext *Channel
	xferNext *Channel
	inXfer   bool

	start, stop int32
	resource    api.Resource
	hasResource bool

	state  stateBits
	delta  stateBits
	events eventBits
}

// NewChannel wraps a Port as a detached Channel of the given polarity and
// freight. Attach it to an Array with Array.Attach.
func NewChannel(p *port.Port, polarity api.Polarity, freight api.Freight, link any) *Channel {
	return &Channel{
		ch:       p,
		polarity: polarity,
		typ:      TypeFor(freight),
		link:     link,
	}
}

// Polarity returns the channel's immutable input/output polarity.
func (c *Channel) Polarity() api.Polarity { return c.polarity }

// Port returns the underlying Port.
func (c *Channel) Port() *port.Port { return c.ch }

// Link returns the caller-assigned opaque link slot.
func (c *Channel) Link() any { return c.link }

// SetLink replaces the caller-assigned opaque link slot.
func (c *Channel) SetLink(v any) { c.link = v }

// Array returns the Array this channel is attached to, or nil if detached.
func (c *Channel) Array() *Array { return c.arr }

// Attached reports whether the channel is a member of an Array's ring.
func (c *Channel) Attached() bool { return c.arr != nil }

// Terminated reports whether both halves of the terminate qualification are
// live: no further transfers will be attempted.
func (c *Channel) Terminated() bool { return c.state.terminated() }

// Events returns the events produced by the most recently completed cycle
// phase (valid between Array.Enter and Array.Exit).
func (c *Channel) Events() (transfer, terminate bool) {
	return c.events.HasTransfer(), c.events.HasTerminate()
}

// Acquire binds an externally owned Resource as the channel's active
// acquisition. A channel that is terminating silently ignores the call (not
// an error — the caller's buffer is simply not needed anymore). A channel
// whose prior resource is still the active internal-transfer qualification
// fails with TransitionViolation; the caller must wait for an exhaust event
// before acquiring again.
func (c *Channel) Acquire(res api.Resource) error {
	var a *Array
	if c.arr != nil {
		a = c.arr
		a.mu.Lock()
		defer a.mu.Unlock()
	}

	if c.state.terminated() || c.delta.has(internalTerminate) {
		return nil
	}
	if c.state.has(internalTransfer) {
		return api.TransitionViolation("acquire: resource already present").WithContext("polarity", c.polarity.String())
	}

	res.Acquire()
	c.resource = res
	c.hasResource = true
	c.start = 0
	c.stop = 0

	if a == nil {
		c.state.set(internalTransfer)
		c.state.set(ctlConnectPending)
		return nil
	}
	c.delta.set(internalTransfer)
	a.enqueueDeltaLocked(c)
	return nil
}

// Force requests a synthetic zero-length transfer tick on the next cycle,
// as if an external-transfer qualification had arrived.
func (c *Channel) Force() {
	if c.arr == nil {
		c.state.set(ctlForce)
		return
	}
	a := c.arr
	a.mu.Lock()
	defer a.mu.Unlock()
	c.delta.set(ctlForce)
	a.enqueueDeltaLocked(c)
}

// SetRequeue sets or clears the control bit that preserves a channel's
// kernel filter across termination and force events.
func (c *Channel) SetRequeue(on bool) {
	if on {
		c.state.set(ctlRequeue)
	} else {
		c.state.clear(ctlRequeue)
	}
}

// Transfer returns the sub-slice of the current Resource transferred during
// the most recently completed cycle phase, or the zero Resource and false
// if no transfer event was produced.
func (c *Channel) Transfer() (api.Resource, bool) {
	if !c.events.HasTransfer() || !c.hasResource {
		return api.Resource{}, false
	}
	return c.resource.Slice(int(c.start), int(c.stop)), true
}

// Slice returns the channel's current [start, stop) window.
func (c *Channel) Slice() (start, stop int) { return int(c.start), int(c.stop) }

// SizeofTransfer returns stop-start of the current window: the number of
// bytes moved during the most recent cycle (for Datagrams, RecordStride
// times the number of records the operation reported as filled or sent).
func (c *Channel) SizeofTransfer() int { return int(c.stop - c.start) }

// Terminate requests termination. On a detached channel it takes effect
// synchronously: both terminate qualifications are set and the port is
// unlatched for this channel's polarity immediately. On an attached channel
// it is deferred through the delta queue like Acquire and Force. Idempotent:
// a channel already terminating is a no-op.
func (c *Channel) Terminate() {
	if c.state.terminated() {
		return
	}
	if c.arr == nil {
		c.state.set(internalTerminate)
		c.state.set(externalTerminate)
		c.unlatch()
		return
	}
	a := c.arr
	a.mu.Lock()
	defer a.mu.Unlock()
	if c.delta.has(internalTerminate) {
		return
	}
	c.delta.set(internalTerminate)
	a.enqueueDeltaLocked(c)
}

func (c *Channel) unlatch() {
	if c.polarity == api.Input {
		c.ch.Unlatch(-1)
	} else {
		c.ch.Unlatch(1)
	}
}

// Endpoint returns the peer address for an output channel, the local
// address for an input channel, or the zero Endpoint if the port is no
// longer latched (descriptor closed).
func (c *Channel) Endpoint() (api.Endpoint, error) {
	fd := c.ch.FD()
	if fd < 0 {
		return api.Endpoint{}, api.ErrDetached
	}
	var sa unix.Sockaddr
	var err error
	if c.polarity == api.Output {
		sa, err = unix.Getpeername(fd)
	} else {
		sa, err = unix.Getsockname(fd)
	}
	if err != nil {
		return api.Endpoint{}, api.NewPortError(api.CallGetsockname, err)
	}
	return sockaddrToEndpoint(sa), nil
}
