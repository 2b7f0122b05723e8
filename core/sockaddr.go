// File: core/sockaddr.go
// Author: momentics <momentics@gmail.com>
//
// Conversion between api.Endpoint and golang.org/x/sys/unix.Sockaddr,
// shared by Channel.Endpoint (getsockname/getpeername) and DatagramArray's
// per-record address (recvfrom/sendto).

package core

import "github.com/cyclemux/cyclemux/api"
import "golang.org/x/sys/unix"

func sockaddrToEndpoint(sa unix.Sockaddr) api.Endpoint {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return api.Endpoint{Family: api.FamilyIP4, Addr: append([]byte(nil), v.Addr[:]...), Port: uint16(v.Port)}
	case *unix.SockaddrInet6:
		return api.Endpoint{Family: api.FamilyIP6, Addr: append([]byte(nil), v.Addr[:]...), Port: uint16(v.Port)}
	case *unix.SockaddrUnix:
		return api.Endpoint{Family: api.FamilyLocal, Path: v.Name}
	default:
		return api.Endpoint{}
	}
}

func endpointToSockaddr(ep api.Endpoint) (unix.Sockaddr, error) {
	switch ep.Family {
	case api.FamilyIP4:
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ep.Addr)
		sa.Port = int(ep.Port)
		return &sa, nil
	case api.FamilyIP6:
		var sa unix.SockaddrInet6
		copy(sa.Addr[:], ep.Addr)
		sa.Port = int(ep.Port)
		return &sa, nil
	case api.FamilyLocal:
		return &unix.SockaddrUnix{Name: ep.Path}, nil
	default:
		return nil, api.ErrInvalidArgument
	}
}
