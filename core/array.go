// File: core/array.go
// Author: momentics <momentics@gmail.com>
//
// Array is the cycle engine: a Channel specialization whose ring root is
// itself, holding the ring of attached channels and the transfer list built
// fresh each cycle. Enter runs phases 1-11 of the cycle (drain the delta
// queue, register filter changes, wait on the kernel backend, harvest
// events, attempt I/O) and returns an Iterator; the caller inspects it, then
// calls Exit to run phases 12-13 (collapse windows, release exhausted
// resources, detach terminated channels).
//
// Deviation from the literal phase description: the per-channel state-bit
// classification in phases 5 and 10 is only ever touched by the single
// goroutine running a cycle (enforced by inCycle), so it is safe unlocked;
// the Array's mutex is held exactly where the spec's source language's
// single process-global lock would be — around the delta ring and the
// ring/transfer-list structure itself, never across the kernel wait or an
// I/O syscall.

package core

import (
	"sync"
	"time"

	"github.com/cyclemux/cyclemux/api"
	"github.com/cyclemux/cyclemux/internal/backend"
	"github.com/cyclemux/cyclemux/internal/logging"
)

var arrayLog = logging.For("array")

// CycleRecorder receives a summary of each completed cycle. Satisfied
// structurally by *control.Control; kept as a local interface so core does
// not import the control package.
type CycleRecorder interface {
	RecordCycle(transfers, terminations, attached int, wait time.Duration)
}

const (
	// DefaultCapacity is the default event-array capacity (W in the spec).
	DefaultCapacity = 16
	// DefaultWaitMillis is the default per-cycle wait deadline (8 seconds).
	DefaultWaitMillis = 8000
	// harvestRounds bounds the extra non-blocking harvest passes (phase 9).
	harvestRounds = 3
)

// Array multiplexes many Channels through one kernel event backend.
type Array struct {
	mu   sync.Mutex
	root Channel

	backend  api.Backend
	events   []api.RawEvent
	capacity int

	waitDeadlineMillis int
	channelCount       int
	xferHead           *Channel
	aboutToWait        bool
	inCycle            bool
	terminating        bool

	udataSeq   uintptr
	byUdata    map[uintptr]*Channel
	fdInterest map[int]api.Interest

	recorder CycleRecorder
}

// SetRecorder attaches a CycleRecorder (typically *control.Control) that
// receives a summary after every completed cycle.
func (a *Array) SetRecorder(r CycleRecorder) {
	a.mu.Lock()
	a.recorder = r
	a.mu.Unlock()
}

// NewArray creates an Array with its own kernel event backend and the
// default event-array capacity and wait deadline.
func NewArray() (*Array, error) {
	return NewArrayWithCapacity(DefaultCapacity)
}

// NewArrayWithCapacity creates an Array whose event array holds at most
// capacity harvested events per Wait call.
func NewArrayWithCapacity(capacity int) (*Array, error) {
	be, err := backend.New()
	if err != nil {
		return nil, err
	}
	a := &Array{
		backend:            be,
		events:             make([]api.RawEvent, capacity),
		capacity:           capacity,
		waitDeadlineMillis: DefaultWaitMillis,
		byUdata:            make(map[uintptr]*Channel),
		fdInterest:         make(map[int]api.Interest),
	}
	a.root.ringPrev = &a.root
	a.root.ringNext = &a.root
	a.root.typ = ChannelType{Name: "eventqueue"}
	return a, nil
}

// SetWaitDeadline changes the default per-cycle wait deadline in milliseconds.
func (a *Array) SetWaitDeadline(millis int) {
	a.mu.Lock()
	a.waitDeadlineMillis = millis
	a.mu.Unlock()
}

// ChannelCount returns the number of attached channels.
func (a *Array) ChannelCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channelCount
}

// Attach adds ch to the Array's ring, marking it connect-pending so its
// kernel filter is registered on the next cycle. Attach must not be called
// while a cycle is in progress on this Array — structural ring changes are
// confined to the owning goroutine between cycles; only Acquire/Terminate/
// Force on an already-attached channel are safe to call from other threads
// mid-cycle, via the delta queue.
func (a *Array) Attach(ch *Channel) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inCycle {
		return api.ErrCycleInProgress
	}
	if a.terminating {
		return api.TransitionViolation("attach: array is terminated")
	}
	if ch.state.terminated() {
		return api.TransitionViolation("attach: channel already terminated")
	}
	if ch.arr != nil {
		return api.TransitionViolation("attach: channel already attached")
	}
	ch.arr = a
	ch.state.set(ctlConnectPending)
	ringInsertTail(&a.root, ch)
	a.channelCount++
	a.appendXfer(ch)
	return nil
}

// Terminate requests termination of the Array itself: every attached
// channel receives a pending terminate delta and will surface a terminate
// event on the next cycle.
func (a *Array) Terminate() {
	a.mu.Lock()
	a.terminating = true
	a.mu.Unlock()
}

// SimulateDescriptorLoss closes the Array's kernel backend without clearing
// channel state, for exercising the fork-recovery path (phase 2): the next
// Enter recreates the backend and re-registers every attached channel.
func (a *Array) SimulateDescriptorLoss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend != nil {
		a.backend.Close()
		a.backend = nil
	}
}

// appendXfer adds c to the transfer list if it is not already there. Safe
// without a.mu held: xferHead is touched only by the single goroutine
// running the current cycle (phase 3 under lock, phases 5-11 without it),
// and by Attach, which is itself rejected while a cycle is in progress.
func (a *Array) appendXfer(c *Channel) {
	if c.inXfer {
		return
	}
	c.inXfer = true
	c.xferNext = a.xferHead
	a.xferHead = c
}

// appendXferLocked is appendXfer under a different name for call sites in
// delta.go that document holding a.mu; the function itself needs no lock.
func (a *Array) appendXferLocked(c *Channel) { a.appendXfer(c) }

func (a *Array) udataFor(c *Channel) uintptr {
	if c.udata == 0 {
		a.udataSeq++
		c.udata = a.udataSeq
		a.byUdata[c.udata] = c
	}
	return c.udata
}

func (a *Array) interestFor(c *Channel) api.Interest {
	if c.typ.Name == "sockets" {
		return api.InterestRead
	}
	if c.polarity == api.Input {
		return api.InterestRead
	}
	return api.InterestWrite
}

// register installs or refreshes ch's kernel filter, tracking the combined
// interest live for its descriptor so a later cancel for one polarity does
// not clobber a sibling channel sharing the same fd (a socket pair).
func (a *Array) register(c *Channel) error {
	fd := c.ch.FD()
	if fd < 0 || a.backend == nil {
		return api.ErrDetached
	}
	want := a.interestFor(c)
	combined := a.fdInterest[fd] | want
	udata := a.udataFor(c)
	var err error
	if _, ok := a.fdInterest[fd]; ok {
		err = a.backend.Modify(fd, combined, udata)
	} else {
		err = a.backend.Register(fd, combined, udata)
	}
	if err != nil {
		return err
	}
	a.fdInterest[fd] = combined
	return nil
}

// cancel removes ch's direction of interest from its descriptor's
// registration, leaving a sibling channel's direction (if any) intact.
func (a *Array) cancel(c *Channel) {
	fd := c.ch.FD()
	if fd < 0 || a.backend == nil {
		return
	}
	mine := a.interestFor(c)
	remaining := a.fdInterest[fd] &^ mine
	if remaining == 0 {
		a.backend.Unregister(fd)
		delete(a.fdInterest, fd)
		return
	}
	a.backend.Modify(fd, remaining, a.udataFor(c))
	a.fdInterest[fd] = remaining
}

// Enter runs phases 1-11 of the cycle and returns an Iterator over the
// channels touched this cycle. waitMillis overrides the Array's default
// wait deadline for this cycle only; pass -1 to use the default.
func (a *Array) Enter(waitMillis int) (*Iterator, error) {
	a.mu.Lock()
	if a.inCycle {
		a.mu.Unlock()
		return nil, api.ErrCycleInProgress
	}
	a.inCycle = true

	a.xferHead = nil
	for c := a.root.ringNext; c != &a.root; c = c.ringNext {
		c.inXfer = false
		c.xferNext = nil
	}
	for c := a.root.ringNext; c != &a.root; c = c.ringNext {
		if c.state.has(ctlConnectPending) {
			a.appendXfer(c)
		}
	}

	if a.terminating {
		for c := a.root.ringNext; c != &a.root; c = c.ringNext {
			c.state.set(internalTerminate)
			a.appendXfer(c)
		}
		if a.backend != nil {
			a.backend.Close()
			a.backend = nil
		}
	} else if a.backend == nil {
		be, err := backend.New()
		if err != nil {
			a.inCycle = false
			a.mu.Unlock()
			return nil, err
		}
		a.backend = be
		a.fdInterest = make(map[int]api.Interest)
		arrayLog.Warn("kernel event descriptor recreated", "reason", "fork recovery")
		for c := a.root.ringNext; c != &a.root; c = c.ringNext {
			c.state.set(ctlConnectPending)
			a.appendXfer(c)
		}
	}

	a.drainDeltaLocked()

	a.aboutToWait = a.xferHead == nil
	terminating := a.terminating
	a.mu.Unlock()

	a.processRegistrations()
	a.reclassify()

	waitStart := time.Now()
	if !terminating && a.backend != nil {
		wait := 0
		if a.xferHead == nil {
			millis := waitMillis
			if millis < 0 {
				a.mu.Lock()
				millis = a.waitDeadlineMillis
				a.mu.Unlock()
			}
			wait = millis
		}
		n, err := a.backend.Wait(a.events, wait)
		if err == nil {
			a.harvest(n)
			for i := 0; i < harvestRounds; i++ {
				n2, err2 := a.backend.Wait(a.events, 0)
				if err2 != nil || n2 == 0 {
					break
				}
				a.harvest(n2)
			}
		}
		a.reclassify()
	}
	waited := time.Since(waitStart)

	a.attemptIO()

	if a.recorder != nil {
		transfers, terms := 0, 0
		for c := a.xferHead; c != nil; c = c.xferNext {
			if c.events.HasTransfer() {
				transfers++
			}
			if c.events.HasTerminate() {
				terms++
			}
		}
		a.recorder.RecordCycle(transfers, terms, a.ChannelCount(), waited)
	}

	return newIterator(a.xferHead), nil
}

// processRegistrations implements phase 5's registration half: every
// channel marked connect-pending gets its filter (re)registered, unless its
// port is already in error, in which case it is classified terminate
// instead; every channel marked force has its qualification pair satisfied
// synthetically so the following I/O attempt produces a zero-length
// transfer event even with no resource acquired.
func (a *Array) processRegistrations() {
	for c := a.xferHead; c != nil; c = c.xferNext {
		if c.state.has(ctlConnectPending) {
			if _, err := c.ch.LastError(); err != nil {
				c.state.set(externalTerminate)
			} else if err := a.register(c); err != nil {
				c.state.set(externalTerminate)
			}
			c.state.clear(ctlConnectPending)
		}
		if c.state.has(ctlForce) {
			c.state.set(internalTransfer)
			c.state.set(externalTransfer)
			c.state.clear(ctlForce)
		}
	}
}

// reclassify drops channels from the transfer list that now qualify for
// neither termination nor transfer.
func (a *Array) reclassify() {
	var head *Channel
	for c := a.xferHead; c != nil; {
		next := c.xferNext
		wantsTerm := c.state.has(internalTerminate) || c.state.has(externalTerminate)
		should := c.state.shouldTransfer()
		if !wantsTerm && !should {
			c.inXfer = false
			c.xferNext = nil
		} else {
			c.xferNext = head
			head = c
		}
		c = next
	}
	a.xferHead = head
}

// harvest translates raw backend events into external qualifications and
// appends newly-qualifying channels to the transfer list (phases 8-9).
func (a *Array) harvest(n int) {
	for i := 0; i < n && i < len(a.events); i++ {
		ev := a.events[i]
		c, ok := a.byUdata[ev.UserData]
		if !ok {
			continue
		}
		if ev.EOF || ev.Error {
			c.state.set(externalTerminate)
		} else if ev.Readable || ev.Writable {
			c.state.set(externalTransfer)
		}
		a.appendXfer(c)
	}
}

// attemptIO is phase 10: termination is classified first (by either half of
// the qualification — the pairing is completed unconditionally once either
// side has asked, since nothing further is gained by waiting for the other
// half to independently agree), then transfer is attempted for channels
// that qualify on both halves.
func (a *Array) attemptIO() {
	var toCancel []*Channel
	for c := a.xferHead; c != nil; c = c.xferNext {
		wantsTerm := c.state.has(internalTerminate) || c.state.has(externalTerminate)
		if wantsTerm {
			c.state.set(internalTerminate)
			c.state.set(externalTerminate)
			c.events |= eventTerminate
			if !c.state.has(ctlRequeue) {
				toCancel = append(toCancel, c)
			}
			continue
		}
		if !c.state.shouldTransfer() {
			continue
		}
		op := c.typ.Op(c.polarity)
		if op == nil {
			continue
		}
		buf := c.windowBuf()
		consumed, result := op(c.ch, buf)
		c.stop += int32(consumed)
		switch result {
		case ResultFlow:
			c.state.clear(internalTransfer)
			c.events |= eventTransfer
		case ResultStop:
			c.state.clear(externalTransfer)
			if consumed > 0 {
				c.events |= eventTransfer
			}
		case ResultTerminate:
			c.state.set(externalTerminate)
			c.events |= eventTransfer
			c.events |= eventTerminate
			if !c.state.has(ctlRequeue) {
				toCancel = append(toCancel, c)
			}
		}
	}
	for _, c := range toCancel {
		a.cancel(c)
	}
}

// windowBuf returns the byte range the I/O op should attempt this cycle.
// Octets/Sockets/Ports advance a byte-offset window; Datagrams reinterprets
// the whole buffer each pass, tracking completion per record instead.
func (c *Channel) windowBuf() []byte {
	if !c.hasResource {
		return nil
	}
	if c.typ.Name == "datagrams" {
		return c.resource.Data
	}
	if int(c.stop) >= len(c.resource.Data) {
		return nil
	}
	return c.resource.Data[c.stop:]
}

// Exit runs phases 12-13: collapse windows, release exhausted or terminated
// channels' resources, detach terminated channels, and reset the transfer
// list for the next cycle.
func (a *Array) Exit() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for c := a.xferHead; c != nil; {
		next := c.xferNext
		c.start = c.stop

		if c.events.HasTerminate() {
			a.detachLocked(c)
		} else if !c.state.has(internalTransfer) && !c.delta.has(internalTransfer) {
			if c.hasResource {
				c.resource.Release()
				c.hasResource = false
			}
		}
		c.events = 0
		c.xferNext = nil
		c.inXfer = false
		c = next
	}
	a.xferHead = nil
	a.inCycle = false
}

func (a *Array) detachLocked(c *Channel) {
	if c.hasResource {
		c.resource.Release()
		c.hasResource = false
	}
	c.unlatch()
	if c.ringPrev != nil {
		ringUnlink(c)
	}
	if c.udata != 0 {
		delete(a.byUdata, c.udata)
		c.udata = 0
	}
	c.arr = nil
	a.channelCount--
}

// Close terminates the Array and releases its kernel backend. Safe to call
// after a final Exit; not safe mid-cycle.
func (a *Array) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.terminating = true
	if a.backend != nil {
		err := a.backend.Close()
		a.backend = nil
		return err
	}
	return nil
}
