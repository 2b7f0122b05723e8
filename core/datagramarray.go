// File: core/datagramarray.go
// Author: momentics <momentics@gmail.com>
//
// DatagramArray is a packed buffer of N variable-length (address, payload)
// records for bulk recvfrom/sendto transfers, per the spec's data model.
// Layout: a 12-byte array header (family, address length, payload space,
// record count) followed by N fixed-stride records, each a 12-byte record
// header (space, size, addrlen) plus addrLen address bytes plus `space`
// payload bytes. The array header makes a DatagramArray self-describing so
// the Datagrams I/O op can rebuild one from the raw Resource bytes it is
// handed each cycle without external metadata.

package core

import (
	"encoding/binary"
	"net"

	"github.com/cyclemux/cyclemux/api"
	"golang.org/x/sys/unix"
)

const (
	arrayHeaderSize  = 12
	recordHeaderSize = 12
)

// DatagramArray is a view over a packed record buffer. Slicing shares the
// backing array and never copies; it does not touch any Resource reference
// count, so a slice holds no reference of its own on the buffer.
type DatagramArray struct {
	buf     []byte
	family  api.Family
	addrLen int // bytes of the address encoding: 4-or-16 IP bytes + 2 port bytes
	space   int
	count   int
	// hdrOff is arrayHeaderSize for a self-describing buffer (from
	// NewDatagramArray/WrapDatagramArray) and 0 for a Slice view, whose buf
	// starts directly at its first record with no array header of its own.
	hdrOff int
}

func ipAddrLen(family api.Family) int {
	if family == api.FamilyIP6 {
		return 16 + 2
	}
	return 4 + 2
}

// NewDatagramArray allocates a fresh packed buffer sized
// count × (header + addrLen + space) plus the array header, and returns
// both the DatagramArray view and the Resource that owns the memory.
func NewDatagramArray(family api.Family, space, count int) (*DatagramArray, api.Resource, error) {
	if space <= 0 || count <= 0 {
		return nil, api.Resource{}, api.AllocationError("datagram array: space and count must be positive")
	}
	addrLen := ipAddrLen(family)
	stride := recordHeaderSize + addrLen + space
	total := arrayHeaderSize + count*stride
	buf := make([]byte, total)

	da := &DatagramArray{buf: buf, family: family, addrLen: addrLen, space: space, count: count, hdrOff: arrayHeaderSize}
	da.writeArrayHeader()
	for i := 0; i < count; i++ {
		da.writeRecordHeader(i, 0)
	}
	return da, api.NewResource(buf, true), nil
}

// WrapDatagramArray parses a DatagramArray's own array header back out of a
// raw byte slice — what the Datagrams I/O op does each cycle with the
// Channel's borrowed Resource.
func WrapDatagramArray(buf []byte) (*DatagramArray, error) {
	if len(buf) < arrayHeaderSize {
		return nil, api.AllocationError("datagram array: buffer shorter than header")
	}
	family := api.Family(buf[0])
	addrLen := int(buf[1])
	space := int(binary.LittleEndian.Uint32(buf[2:6]))
	count := int(binary.LittleEndian.Uint32(buf[6:10]))
	stride := recordHeaderSize + addrLen + space
	want := arrayHeaderSize + count*stride
	if len(buf) < want {
		return nil, api.AllocationError("datagram array: buffer truncated")
	}
	return &DatagramArray{buf: buf[:want], family: family, addrLen: addrLen, space: space, count: count, hdrOff: arrayHeaderSize}, nil
}

func (d *DatagramArray) writeArrayHeader() {
	d.buf[0] = byte(d.family)
	d.buf[1] = byte(d.addrLen)
	binary.LittleEndian.PutUint32(d.buf[2:6], uint32(d.space))
	binary.LittleEndian.PutUint32(d.buf[6:10], uint32(d.count))
}

// RecordStride returns the fixed byte size of one record, header included.
func (d *DatagramArray) RecordStride() int {
	return recordHeaderSize + d.addrLen + d.space
}

// Count returns the number of records.
func (d *DatagramArray) Count() int { return d.count }

func (d *DatagramArray) recordOffset(i int) int {
	return d.hdrOff + i*d.RecordStride()
}

func (d *DatagramArray) writeRecordHeader(i, size int) {
	off := d.recordOffset(i)
	binary.LittleEndian.PutUint32(d.buf[off:off+4], uint32(d.space))
	binary.LittleEndian.PutUint32(d.buf[off+4:off+8], uint32(size))
	binary.LittleEndian.PutUint32(d.buf[off+8:off+12], uint32(d.addrLen))
}

// Size returns record i's filled payload length (0 until a recv fills it,
// or until it is queued for send).
func (d *DatagramArray) Size(i int) int {
	off := d.recordOffset(i)
	return int(binary.LittleEndian.Uint32(d.buf[off+4 : off+8]))
}

func (d *DatagramArray) setSize(i, n int) {
	off := d.recordOffset(i)
	if n > d.space {
		n = d.space // truncation on receive clamps to space
	}
	binary.LittleEndian.PutUint32(d.buf[off+4:off+8], uint32(n))
}

// SetSize marks record i as queued for send with n payload bytes, the
// caller-facing counterpart to the recv path's internal setSize: the
// Datagrams output op sends every record with a nonzero Size and clears it
// back to 0 once sent, so a caller preparing a batch to send calls this
// instead of recv's silent truncate-to-space behavior.
func (d *DatagramArray) SetSize(i, n int) error {
	if n < 0 || n > d.space {
		return api.AllocationError("datagram array: size out of range").WithContext("space", d.space).WithContext("size", n)
	}
	d.setSize(i, n)
	return nil
}

// Payload returns the full-capacity view over record i's payload region.
func (d *DatagramArray) Payload(i int) []byte { return d.payloadSlice(i) }

func (d *DatagramArray) payloadSlice(i int) []byte {
	off := d.recordOffset(i) + recordHeaderSize + d.addrLen
	return d.buf[off : off+d.space]
}

func (d *DatagramArray) addrSlice(i int) []byte {
	off := d.recordOffset(i) + recordHeaderSize
	return d.buf[off : off+d.addrLen]
}

// Endpoint decodes record i's address into an api.Endpoint.
func (d *DatagramArray) Endpoint(i int) (api.Endpoint, error) {
	addr := d.addrSlice(i)
	ipLen := d.addrLen - 2
	port := binary.BigEndian.Uint16(addr[ipLen:])
	ep := api.Endpoint{Family: d.family, Kind: api.SocketKindDatagrams, Addr: append([]byte(nil), addr[:ipLen]...), Port: port}
	return ep, nil
}

// SetEndpoint copies addr in, validating that its protocol family matches
// this array's.
func (d *DatagramArray) SetEndpoint(i int, ep api.Endpoint) error {
	if ep.Family != d.family {
		return api.AllocationError("datagram array: endpoint family mismatch")
	}
	ipLen := d.addrLen - 2
	if len(ep.Addr) != ipLen {
		return api.AllocationError("datagram array: endpoint address length mismatch")
	}
	addr := d.addrSlice(i)
	copy(addr[:ipLen], ep.Addr)
	binary.BigEndian.PutUint16(addr[ipLen:], ep.Port)
	return nil
}

// Sockaddr builds a unix.Sockaddr for sendto from record i's address.
func (d *DatagramArray) Sockaddr(i int) (unix.Sockaddr, error) {
	ep, _ := d.Endpoint(i)
	return endpointToSockaddr(ep)
}

// setSockaddr records the peer address a recvfrom reported for record i.
func (d *DatagramArray) setSockaddr(i int, sa unix.Sockaddr) {
	ep := sockaddrToEndpoint(sa)
	if ep.Family == d.family {
		d.SetEndpoint(i, ep)
	}
}

// Slice returns a view over records [from:to), sharing the same backing
// buffer. Step must be 1 — the spec only allows contiguous record ranges.
func (d *DatagramArray) Slice(from, to int) (*DatagramArray, error) {
	if from < 0 || to > d.count || from > to {
		return nil, api.ErrInvalidArgument
	}
	lo := d.recordOffset(from)
	hi := d.recordOffset(to)
	return &DatagramArray{
		buf:     d.buf[lo:hi],
		family:  d.family,
		addrLen: d.addrLen,
		space:   d.space,
		count:   to - from,
		hdrOff:  0,
	}, nil
}

// ToUDPAddr is a convenience for callers bridging to net.Conn-based code.
func (d *DatagramArray) ToUDPAddr(i int) (*net.UDPAddr, error) {
	ep, err := d.Endpoint(i)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: net.IP(ep.Addr), Port: int(ep.Port)}, nil
}
