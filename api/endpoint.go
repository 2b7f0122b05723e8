// File: api/endpoint.go
// Author: momentics <momentics@gmail.com>
//
// Endpoint is the address shape Channel.Endpoint() returns. Full endpoint
// parsing (getaddrinfo-style resolution, connect/bind/listen helpers) is an
// out-of-scope collaborator; this type only carries the byte-wise comparable
// address the core recovers from getsockname/getpeername.

package api

import "bytes"

// Family tags the address family of an Endpoint.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyIP4
	FamilyIP6
	FamilyLocal // filesystem-path (AF_UNIX) socket
	FamilyFile  // generic path, no socket
)

// SocketKind records the declared socket type an Endpoint was bound with.
type SocketKind uint8

const (
	SocketKindUnknown SocketKind = iota
	SocketKindOctets             // SOCK_STREAM
	SocketKindDatagrams          // SOCK_DGRAM
	SocketKindSockets            // SOCK_STREAM, listener role
	SocketKindPackets            // SOCK_SEQPACKET
)

// Endpoint is an address: protocol family plus raw address bytes. For
// FamilyLocal the address bytes are the directory portion and Path is the
// filename portion; Endpoint.String() joins them with "/" per the spec.
type Endpoint struct {
	Family Family
	Kind   SocketKind
	Addr   []byte // ip4 (4 bytes), ip6 (16 bytes, +flow info out of band), or directory path
	Path   string // local-socket filename portion, or the full path for FamilyFile
	Port   uint16 // for ip4/ip6
}

// Equal compares two endpoints by protocol family and byte-wise address,
// per the spec: "Equality is by protocol-family and byte-wise address
// comparison."
func (e Endpoint) Equal(o Endpoint) bool {
	if e.Family != o.Family {
		return false
	}
	if e.Family == FamilyLocal || e.Family == FamilyFile {
		return e.Path == o.Path && bytes.Equal(e.Addr, o.Addr)
	}
	return e.Port == o.Port && bytes.Equal(e.Addr, o.Addr)
}

func (e Endpoint) String() string {
	switch e.Family {
	case FamilyLocal:
		if len(e.Addr) == 0 {
			return e.Path
		}
		return string(e.Addr) + "/" + e.Path
	case FamilyFile:
		return e.Path
	default:
		return string(e.Addr)
	}
}
