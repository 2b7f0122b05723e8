// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants for the cycle engine.

package api

// Polarity fixes whether a Channel is the input or output side of a Port.
// Polarity is immutable for the lifetime of a Channel.
type Polarity uint8

const (
	// Input channels read from the kernel (read, accept, recvmsg, recvfrom).
	Input Polarity = iota
	// Output channels write to the kernel (write, sendmsg, sendto).
	Output
)

func (p Polarity) String() string {
	if p == Input {
		return "input"
	}
	return "output"
}

// Typology tags the kind of OS object a Port wraps.
type Typology uint8

const (
	TypologyUnknown Typology = iota
	TypologySocket
	TypologyPipe
	TypologyFIFO
	TypologyDevice
	TypologyTTY
	TypologyFile
	TypologyEventQueue
	TypologyBad
)

func (t Typology) String() string {
	switch t {
	case TypologySocket:
		return "socket"
	case TypologyPipe:
		return "pipe"
	case TypologyFIFO:
		return "fifo"
	case TypologyDevice:
		return "device"
	case TypologyTTY:
		return "tty"
	case TypologyFile:
		return "file"
	case TypologyEventQueue:
		return "eventqueue"
	case TypologyBad:
		return "bad"
	default:
		return "unknown"
	}
}

// Freight describes what a Port carries — this selects the Channel
// variant's I/O operation pair (see the core package's typology table).
type Freight uint8

const (
	FreightVoid Freight = iota
	FreightEvents
	FreightOctets
	FreightDatagrams
	FreightSockets
	FreightPorts
)

func (f Freight) String() string {
	switch f {
	case FreightEvents:
		return "events"
	case FreightOctets:
		return "octets"
	case FreightDatagrams:
		return "datagrams"
	case FreightSockets:
		return "sockets"
	case FreightPorts:
		return "ports"
	default:
		return "void"
	}
}

// CallName identifies the last syscall attempted on a Port, for diagnostics.
// Only the calls the core subsystem actually issues are enumerated; this is
// not an exhaustive syscall table.
type CallName string

const (
	CallNone        CallName = ""
	CallSocket      CallName = "socket"
	CallSocketpair  CallName = "socketpair"
	CallPipe        CallName = "pipe2"
	CallBind        CallName = "bind"
	CallListen      CallName = "listen"
	CallConnect     CallName = "connect"
	CallAccept      CallName = "accept4"
	CallRead        CallName = "read"
	CallWrite       CallName = "write"
	CallRecvfrom    CallName = "recvfrom"
	CallSendto      CallName = "sendto"
	CallRecvmsg     CallName = "recvmsg"
	CallSendmsg     CallName = "sendmsg"
	CallShutdown    CallName = "shutdown"
	CallClose       CallName = "close"
	CallFcntl       CallName = "fcntl"
	CallSetsockopt  CallName = "setsockopt"
	CallGetsockname CallName = "getsockname"
	CallGetpeername CallName = "getpeername"
	CallKqueue      CallName = "kqueue"
	CallKevent      CallName = "kevent"
	CallEpollCreate CallName = "epoll_create1"
	CallEpollCtl    CallName = "epoll_ctl"
	CallEpollWait   CallName = "epoll_wait"
	CallEventfd     CallName = "eventfd2"
)

// Qualification is a single boolean readiness condition. Qualifications are
// always paired: an Internal half (process-side) and an External half
// (kernel-side); both must hold for the paired condition to be "live".
type Qualification uint8

const (
	// QualTerminate marks the terminate condition live on one side.
	QualTerminate Qualification = 1 << iota
	// QualTransfer marks the transfer condition live on one side.
	QualTransfer
)

// Control bits recorded alongside qualifications; these are never paired
// internal/external — they are simple flags consulted directly by the cycle.
type ControlBit uint8

const (
	// CtlForce requests a synthetic zero-length transfer tick next cycle.
	CtlForce ControlBit = 1 << iota
	// CtlRequeue preserves the kernel filter across termination/force.
	CtlRequeue
	// CtlConnectPending marks a channel whose filter must be (re)registered.
	CtlConnectPending
)
