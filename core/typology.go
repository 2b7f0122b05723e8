// File: core/typology.go
// Author: momentics <momentics@gmail.com>
//
// Channel variant dispatch table: each Freight binds to a pair of I/O
// functions selected by polarity, per the Octets/Sockets/Ports/Datagrams
// table. The teacher's reactor dispatched on a similar (fd, direction)
// function-pointer pair; here it is a plain Go struct of two closures rather
// than an interface, since the set of variants is closed and known.

package core

import (
	"github.com/cyclemux/cyclemux/api"
	"github.com/cyclemux/cyclemux/port"
	"golang.org/x/sys/unix"
)

// IOResult is the outcome of one polarity-selected I/O attempt against a
// Channel's current window.
type IOResult uint8

const (
	// ResultFlow: the buffer was fully consumed without blocking.
	ResultFlow IOResult = iota
	// ResultStop: would block; wait for the next kernel-edge signal.
	ResultStop
	// ResultTerminate: EOF or a fatal error; the Port records the failure.
	ResultTerminate
)

type ioOp func(p *port.Port, buf []byte) (consumed int, result IOResult)

// ChannelType names a Freight's polarity-selected operation pair and its
// transfer unit size.
type ChannelType struct {
	Name     string
	InputOp  ioOp
	OutputOp ioOp
	Unit     int
}

// Op returns the I/O function this type binds for the given polarity.
func (t ChannelType) Op(pol api.Polarity) ioOp {
	if pol == api.Input {
		return t.InputOp
	}
	return t.OutputOp
}

// TypeFor resolves the ChannelType bound to a Freight tag.
func TypeFor(freight api.Freight) ChannelType {
	switch freight {
	case api.FreightOctets:
		return OctetsType
	case api.FreightSockets:
		return SocketsType
	case api.FreightPorts:
		return PortsType
	case api.FreightDatagrams:
		return DatagramsType
	default:
		return ChannelType{Name: "void"}
	}
}

// OctetsType: plain stream read/write, one byte per unit.
var OctetsType = ChannelType{
	Name:     "octets",
	InputOp:  octetsRead,
	OutputOp: octetsWrite,
	Unit:     1,
}

func octetsRead(p *port.Port, buf []byte) (int, IOResult) {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(p.FD(), buf[total:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return total, ResultStop
			}
			p.Retry(api.CallRead, func() (int, error) { return 0, err })
			return total, ResultTerminate
		}
		if n == 0 {
			return total, ResultTerminate
		}
		total += n
	}
	return total, ResultFlow
}

func octetsWrite(p *port.Port, buf []byte) (int, IOResult) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(p.FD(), buf[total:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return total, ResultStop
			}
			p.Retry(api.CallWrite, func() (int, error) { return 0, err })
			return total, ResultTerminate
		}
		if n == 0 {
			return total, ResultTerminate
		}
		total += n
	}
	return total, ResultFlow
}

// SocketsType: a listening socket's input side is accept; it has no output
// op. Each unit is one accepted descriptor, packed as a little-endian int32.
var SocketsType = ChannelType{
	Name:    "sockets",
	InputOp: socketsAccept,
	Unit:    4,
}

func socketsAccept(p *port.Port, buf []byte) (int, IOResult) {
	total := 0
	for total+4 <= len(buf) {
		nfd, _, err := unix.Accept4(p.FD(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return total, ResultStop
			}
			p.Retry(api.CallAccept, func() (int, error) { return 0, err })
			return total, ResultTerminate
		}
		putInt32(buf[total:total+4], int32(nfd))
		total += 4
	}
	return total, ResultFlow
}

// PortsType: descriptor passing over a socket pair via SCM_RIGHTS. Each
// unit is one passed descriptor, packed as a little-endian int32; one
// dummy payload byte travels alongside each control message, since a
// sendmsg carrying only ancillary data delivers nothing on some kernels.
var PortsType = ChannelType{
	Name:     "ports",
	InputOp:  portsRecvmsg,
	OutputOp: portsSendmsg,
	Unit:     4,
}

func portsRecvmsg(p *port.Port, buf []byte) (int, IOResult) {
	total := 0
	var payload [1]byte
	for total+4 <= len(buf) {
		oob := make([]byte, unix.CmsgSpace(4))
		n, oobn, _, _, err := unix.Recvmsg(p.FD(), payload[:], oob, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return total, ResultStop
			}
			p.Retry(api.CallRecvmsg, func() (int, error) { return 0, err })
			return total, ResultTerminate
		}
		if n == 0 && oobn == 0 {
			return total, ResultTerminate
		}
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil || len(cmsgs) == 0 {
			continue
		}
		fds, err := unix.ParseUnixRights(&cmsgs[0])
		if err != nil || len(fds) == 0 {
			continue
		}
		putInt32(buf[total:total+4], int32(fds[0]))
		total += 4
	}
	return total, ResultFlow
}

func portsSendmsg(p *port.Port, buf []byte) (int, IOResult) {
	total := 0
	payload := []byte{0}
	for total+4 <= len(buf) {
		fd := getInt32(buf[total : total+4])
		oob := unix.UnixRights(int(fd))
		err := unix.Sendmsg(p.FD(), payload, oob, nil, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return total, ResultStop
			}
			p.Retry(api.CallSendmsg, func() (int, error) { return 0, err })
			return total, ResultTerminate
		}
		total += 4
	}
	return total, ResultFlow
}

// DatagramsType: bulk recvfrom/sendto over a packed DatagramArray buffer.
var DatagramsType = ChannelType{
	Name:     "datagrams",
	InputOp:  datagramsRecvfrom,
	OutputOp: datagramsSendto,
	Unit:     1,
}

// datagramsRecvfrom fills every still-empty record (Size == 0) it can
// without blocking. A record already filled by an earlier partial pass is
// left untouched, which is what makes repeated calls across cycles safe:
// there is no separate byte-offset window for Datagrams, only per-record
// completion.
func datagramsRecvfrom(p *port.Port, buf []byte) (int, IOResult) {
	da, err := WrapDatagramArray(buf)
	if err != nil {
		return 0, ResultTerminate
	}
	filled := 0
	for i := 0; i < da.Count(); i++ {
		if da.Size(i) != 0 {
			filled++
			continue
		}
		payload := da.payloadSlice(i)
		n, from, err := unix.Recvfrom(p.FD(), payload, 0)
		if err == unix.EINTR {
			i--
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return da.RecordStride() * filled, ResultStop
			}
			p.Retry(api.CallRecvfrom, func() (int, error) { return 0, err })
			return da.RecordStride() * filled, ResultTerminate
		}
		if n == 0 {
			return da.RecordStride() * filled, ResultTerminate
		}
		da.setSize(i, n)
		if from != nil {
			da.setSockaddr(i, from)
		}
		filled++
	}
	return da.RecordStride() * filled, ResultFlow
}

// datagramsSendto sends every still-queued record (Size != 0), clearing
// Size back to 0 once sent so a resumed pass skips it.
func datagramsSendto(p *port.Port, buf []byte) (int, IOResult) {
	da, err := WrapDatagramArray(buf)
	if err != nil {
		return 0, ResultTerminate
	}
	sent := 0
	pending := 0
	for i := 0; i < da.Count(); i++ {
		size := da.Size(i)
		if size == 0 {
			continue
		}
		pending++
		sa, err := da.Sockaddr(i)
		if err != nil {
			continue
		}
		payload := da.payloadSlice(i)[:size]
		err = unix.Sendto(p.FD(), payload, 0, sa)
		if err == unix.EINTR {
			i--
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return da.RecordStride() * sent, ResultStop
			}
			p.Retry(api.CallSendto, func() (int, error) { return 0, err })
			return da.RecordStride() * sent, ResultTerminate
		}
		da.setSize(i, 0)
		sent++
		pending--
	}
	if pending > 0 {
		return da.RecordStride() * sent, ResultStop
	}
	return da.RecordStride() * sent, ResultFlow
}

func putInt32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getInt32(b []byte) int32 {
	return int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
}
