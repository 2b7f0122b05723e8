// File: core/array_test.go
// Author: momentics <momentics@gmail.com>

package core

import (
	"testing"
	"time"

	"github.com/cyclemux/cyclemux/api"
	"github.com/cyclemux/cyclemux/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func runCycles(t *testing.T, a *Array, rounds int, waitMillis int) {
	t.Helper()
	for i := 0; i < rounds; i++ {
		_, err := a.Enter(waitMillis)
		require.NoError(t, err)
		a.Exit()
	}
}

// TestArrayPipeEcho covers the spec's basic pipe scenario: a write channel
// with data acquired transfers it fully in one cycle (a pipe's write side is
// immediately writable), and a read channel picks it up once the kernel
// backend reports readability.
func TestArrayPipeEcho(t *testing.T) {
	rp, wp, err := port.Pipe()
	require.NoError(t, err)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	readCh := NewChannel(rp, api.Input, api.FreightOctets, nil)
	writeCh := NewChannel(wp, api.Output, api.FreightOctets, nil)
	require.NoError(t, arr.Attach(readCh))
	require.NoError(t, arr.Attach(writeCh))

	readBuf := api.NewResource(make([]byte, 16), true)
	require.NoError(t, readCh.Acquire(readBuf))

	payload := []byte("hello")
	writeBuf := api.NewResource(append([]byte(nil), payload...), false)
	require.NoError(t, writeCh.Acquire(writeBuf))

	var gotTransfer bool
	var got []byte
	for i := 0; i < 10 && !gotTransfer; i++ {
		_, err := arr.Enter(50)
		require.NoError(t, err)
		if transfer, _ := readCh.Events(); transfer && readCh.SizeofTransfer() > 0 {
			gotTransfer = true
			if res, ok := readCh.Transfer(); ok {
				got = append(got, res.Bytes()...)
			}
		}
		arr.Exit()
	}

	require.True(t, gotTransfer, "read channel never observed a transfer")
	assert.Equal(t, payload, got)
}

// TestArrayForceZeroLengthTransfer covers the scenario where a channel with
// no resource acquired is forced: it must still produce a zero-length
// transfer event rather than blocking or erroring.
func TestArrayForceZeroLengthTransfer(t *testing.T) {
	rp, wp, err := port.Pipe()
	require.NoError(t, err)
	defer wp.Unlatch(1)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	readCh := NewChannel(rp, api.Input, api.FreightOctets, nil)
	require.NoError(t, arr.Attach(readCh))

	readCh.Force()

	_, err = arr.Enter(0)
	require.NoError(t, err)
	transfer, terminate := readCh.Events()
	assert.True(t, transfer)
	assert.False(t, terminate)
	assert.Equal(t, 0, readCh.SizeofTransfer())
	arr.Exit()

	assert.True(t, readCh.Attached())
}

// TestArraySocketPairTerminationCascade covers termination: closing one side
// of a socket pair must surface as a terminate event (EOF) on the other side
// once the kernel backend observes it, and the channel must be detached.
func TestArraySocketPairTerminationCascade(t *testing.T) {
	a, b, err := port.Socketpair(unix.SOCK_STREAM, api.FreightOctets)
	require.NoError(t, err)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	readCh := NewChannel(a, api.Input, api.FreightOctets, nil)
	writeCh := NewChannel(b, api.Output, api.FreightOctets, nil)
	require.NoError(t, arr.Attach(readCh))
	require.NoError(t, arr.Attach(writeCh))

	readBuf := api.NewResource(make([]byte, 16), true)
	require.NoError(t, readCh.Acquire(readBuf))

	runCycles(t, arr, 1, 0)

	writeCh.Terminate()
	runCycles(t, arr, 1, 0)
	assert.False(t, writeCh.Attached())

	var terminated bool
	for i := 0; i < 20 && !terminated; i++ {
		_, err := arr.Enter(50)
		require.NoError(t, err)
		if _, term := readCh.Events(); term {
			terminated = true
		}
		arr.Exit()
	}

	require.True(t, terminated, "read channel never observed termination after peer close")
	assert.False(t, readCh.Attached())
	assert.Equal(t, 0, arr.ChannelCount())
}

// TestArrayAttachRejectedDuringCycle covers the Open Question resolution
// that structural ring mutation is confined to the owning goroutine between
// cycles: Attach must fail fast with ErrCycleInProgress if called while
// inCycle is true, rather than racing the cycle owner's unlocked phases.
func TestArrayAttachRejectedDuringCycle(t *testing.T) {
	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	arr.mu.Lock()
	arr.inCycle = true
	arr.mu.Unlock()

	rp, wp, err := port.Pipe()
	require.NoError(t, err)
	defer rp.Unlatch(-1)
	defer wp.Unlatch(1)

	ch := NewChannel(rp, api.Input, api.FreightOctets, nil)
	assert.ErrorIs(t, arr.Attach(ch), api.ErrCycleInProgress)
}

// TestArrayConcurrentAcquireWakesWait covers wake-on-delta: an Acquire
// arriving on another goroutine while Enter is blocked in the kernel wait
// must cause that Wait to return promptly instead of sitting out the full
// deadline.
func TestArrayConcurrentAcquireWakesWait(t *testing.T) {
	rp, wp, err := port.Pipe()
	require.NoError(t, err)
	defer wp.Unlatch(1)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	readCh := NewChannel(rp, api.Input, api.FreightOctets, nil)
	require.NoError(t, arr.Attach(readCh))
	runCycles(t, arr, 1, 0) // registers the attached channel's kernel filter

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		buf := api.NewResource(make([]byte, 16), true)
		_ = readCh.Acquire(buf)
		close(done)
	}()

	start := time.Now()
	_, err = arr.Enter(5000)
	require.NoError(t, err)
	elapsed := time.Since(start)
	arr.Exit()
	<-done

	assert.Less(t, elapsed, 2*time.Second, "Enter did not wake promptly on concurrent Acquire")
}

// TestArraySimulateDescriptorLoss covers fork recovery (phase 2): after the
// backend is lost, the next Enter must recreate it and re-register every
// still-attached channel rather than failing outright.
func TestArraySimulateDescriptorLoss(t *testing.T) {
	rp, wp, err := port.Pipe()
	require.NoError(t, err)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	readCh := NewChannel(rp, api.Input, api.FreightOctets, nil)
	writeCh := NewChannel(wp, api.Output, api.FreightOctets, nil)
	require.NoError(t, arr.Attach(readCh))
	require.NoError(t, arr.Attach(writeCh))
	runCycles(t, arr, 1, 0)

	arr.SimulateDescriptorLoss()

	readBuf := api.NewResource(make([]byte, 16), true)
	require.NoError(t, readCh.Acquire(readBuf))
	payload := []byte("again")
	writeBuf := api.NewResource(append([]byte(nil), payload...), false)
	require.NoError(t, writeCh.Acquire(writeBuf))

	var gotTransfer bool
	for i := 0; i < 10 && !gotTransfer; i++ {
		_, err := arr.Enter(50)
		require.NoError(t, err)
		if transfer, _ := readCh.Events(); transfer && readCh.SizeofTransfer() > 0 {
			gotTransfer = true
		}
		arr.Exit()
	}
	require.True(t, gotTransfer, "array failed to recover after simulated descriptor loss")
}

// TestArrayDatagramEcho covers the Datagrams freight's bulk recvfrom/sendto
// path over a pair of loopback UDP sockets.
func TestArrayDatagramEcho(t *testing.T) {
	fdA, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	fdB, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	require.NoError(t, unix.Bind(fdA, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Bind(fdB, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}))

	saA, err := unix.Getsockname(fdA)
	require.NoError(t, err)
	addrA := saA.(*unix.SockaddrInet4)

	pA := port.New(fdA, api.TypologySocket, api.FreightDatagrams, 1, 1)
	pB := port.New(fdB, api.TypologySocket, api.FreightDatagrams, 1, 1)
	defer pA.Unlatch(-1)
	defer pA.Unlatch(1)
	defer pB.Unlatch(-1)
	defer pB.Unlatch(1)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	readCh := NewChannel(pA, api.Input, api.FreightDatagrams, nil)
	writeCh := NewChannel(pB, api.Output, api.FreightDatagrams, nil)
	require.NoError(t, arr.Attach(readCh))
	require.NoError(t, arr.Attach(writeCh))

	recvArray, recvRes, err := NewDatagramArray(api.FamilyIP4, 64, 1)
	require.NoError(t, err)
	require.NoError(t, readCh.Acquire(recvRes))

	sendArray, sendRes, err := NewDatagramArray(api.FamilyIP4, 64, 1)
	require.NoError(t, err)
	target := api.Endpoint{Family: api.FamilyIP4, Addr: append([]byte(nil), addrA.Addr[:]...), Port: uint16(addrA.Port)}
	require.NoError(t, sendArray.SetEndpoint(0, target))
	copy(sendArray.Payload(0), []byte("hi"))
	sendArray.setSize(0, 2)
	require.NoError(t, writeCh.Acquire(sendRes))

	var received bool
	for i := 0; i < 20 && !received; i++ {
		_, err := arr.Enter(50)
		require.NoError(t, err)
		if recvArray.Size(0) > 0 {
			received = true
		}
		arr.Exit()
	}

	require.True(t, received, "datagram never arrived")
	assert.Equal(t, []byte("hi"), recvArray.Payload(0)[:recvArray.Size(0)])
}

// TestArrayEnterIteratorWalksForcedChannels covers the Iterator returned by
// Enter: forcing two channels should queue both onto the cycle's transfer
// list, and the iterator should walk each exactly once before exhausting.
func TestArrayEnterIteratorWalksForcedChannels(t *testing.T) {
	rp1, wp1, err := port.Pipe()
	require.NoError(t, err)
	rp2, wp2, err := port.Pipe()
	require.NoError(t, err)
	defer wp1.Unlatch(1)
	defer wp2.Unlatch(1)

	arr, err := NewArray()
	require.NoError(t, err)
	defer arr.Close()

	chA := NewChannel(rp1, api.Input, api.FreightOctets, nil)
	chB := NewChannel(rp2, api.Input, api.FreightOctets, nil)
	require.NoError(t, arr.Attach(chA))
	require.NoError(t, arr.Attach(chB))

	chA.Force()
	chB.Force()

	it, err := arr.Enter(0)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Len())

	seen := make(map[*Channel]bool)
	for it.Next() {
		seen[it.Channel()] = true
	}
	assert.Len(t, seen, 2)
	assert.True(t, seen[chA])
	assert.True(t, seen[chB])
	assert.False(t, it.Next(), "iterator must report exhausted after walking every entry")

	arr.Exit()
}
