//go:build linux
// +build linux

// File: internal/backend/backend_linux.go
// Author: momentics <momentics@gmail.com>
//
// epoll(7)-based Backend. Per the spec's data model for Array on Linux, two
// extra descriptors are kept: a second epoll instance dedicated to writable
// interest (so a shared fd can be armed independently for read and write
// without EPOLL_CTL_MOD clobbering the other direction's registration) and
// an eventfd used to wake a blocked Wait. The write-interest epoll instance
// is itself registered, nested, inside the read-interest one, so a single
// Wait call observes both.

package backend

import (
	"encoding/binary"
	"sync"

	"github.com/cyclemux/cyclemux/api"
	"golang.org/x/sys/unix"
)

const maxEpollBatch = 128

// epollBackend implements api.Backend using two nested epoll instances.
type epollBackend struct {
	readFD  int
	writeFD int
	wakeFD  int // eventfd

	mu      sync.Mutex
	udataR  map[int]uintptr
	udataW  map[int]uintptr
	rawBuf  []unix.EpollEvent
	wrawBuf []unix.EpollEvent
}

// New creates a Linux epoll Backend.
func New() (api.Backend, error) {
	readFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewPortError(api.CallEpollCreate, err)
	}
	writeFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(readFD)
		return nil, api.NewPortError(api.CallEpollCreate, err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(readFD)
		unix.Close(writeFD)
		return nil, api.NewPortError(api.CallEventfd, err)
	}

	b := &epollBackend{
		readFD:  readFD,
		writeFD: writeFD,
		wakeFD:  wakeFD,
		udataR:  make(map[int]uintptr),
		udataW:  make(map[int]uintptr),
		rawBuf:  make([]unix.EpollEvent, maxEpollBatch),
		wrawBuf: make([]unix.EpollEvent, maxEpollBatch),
	}

	// Nest the write-interest instance inside the read-interest one: it
	// becomes readable whenever it has events of its own pending.
	if err := unix.EpollCtl(readFD, unix.EPOLL_CTL_ADD, writeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(writeFD),
	}); err != nil {
		b.Close()
		return nil, api.NewPortError(api.CallEpollCtl, err)
	}
	// Register the wake eventfd for level-triggered readability.
	if err := unix.EpollCtl(readFD, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		b.Close()
		return nil, api.NewPortError(api.CallEpollCtl, err)
	}
	return b, nil
}

func epollEventsFor(i api.Interest) uint32 {
	var ev uint32
	if i&api.InterestRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if i&api.InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev | unix.EPOLLET
}

func (b *epollBackend) Register(fd int, interest api.Interest, udata uintptr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if interest&api.InterestRead != 0 {
		if err := unix.EpollCtl(b.readFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: epollEventsFor(api.InterestRead), Fd: int32(fd),
		}); err != nil {
			return api.NewPortError(api.CallEpollCtl, err)
		}
		b.udataR[fd] = udata
	}
	if interest&api.InterestWrite != 0 {
		if err := unix.EpollCtl(b.writeFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: epollEventsFor(api.InterestWrite), Fd: int32(fd),
		}); err != nil {
			return api.NewPortError(api.CallEpollCtl, err)
		}
		b.udataW[fd] = udata
	}
	return nil
}

func (b *epollBackend) Modify(fd int, interest api.Interest, udata uintptr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, hasR := b.udataR[fd]
	_, hasW := b.udataW[fd]

	wantR := interest&api.InterestRead != 0
	wantW := interest&api.InterestWrite != 0

	if wantR && !hasR {
		if err := unix.EpollCtl(b.readFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: epollEventsFor(api.InterestRead), Fd: int32(fd)}); err != nil {
			return api.NewPortError(api.CallEpollCtl, err)
		}
		b.udataR[fd] = udata
	} else if !wantR && hasR {
		unix.EpollCtl(b.readFD, unix.EPOLL_CTL_DEL, fd, nil)
		delete(b.udataR, fd)
	}
	if wantW && !hasW {
		if err := unix.EpollCtl(b.writeFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: epollEventsFor(api.InterestWrite), Fd: int32(fd)}); err != nil {
			return api.NewPortError(api.CallEpollCtl, err)
		}
		b.udataW[fd] = udata
	} else if !wantW && hasW {
		unix.EpollCtl(b.writeFD, unix.EPOLL_CTL_DEL, fd, nil)
		delete(b.udataW, fd)
	}
	return nil
}

func (b *epollBackend) Unregister(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.udataR[fd]; ok {
		unix.EpollCtl(b.readFD, unix.EPOLL_CTL_DEL, fd, nil)
		delete(b.udataR, fd)
	}
	if _, ok := b.udataW[fd]; ok {
		unix.EpollCtl(b.writeFD, unix.EPOLL_CTL_DEL, fd, nil)
		delete(b.udataW, fd)
	}
	return nil
}

// Wait blocks on the read-interest instance (which also observes the nested
// write-interest instance and the wake eventfd), then drains any pending
// write-interest events non-blockingly.
func (b *epollBackend) Wait(out []api.RawEvent, timeoutMillis int) (int, error) {
	n, err := unix.EpollWait(b.readFD, b.rawBuf, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.NewPortError(api.CallEpollWait, err)
	}

	count := 0
	b.mu.Lock()
	for i := 0; i < n && count < len(out); i++ {
		ev := b.rawBuf[i]
		fd := int(ev.Fd)
		switch fd {
		case b.wakeFD:
			var buf [8]byte
			unix.Read(b.wakeFD, buf[:])
			continue
		case b.writeFD:
			count += b.drainWriteLocked(out[count:])
			continue
		default:
			udata, ok := b.udataR[fd]
			if !ok {
				continue
			}
			out[count] = api.RawEvent{
				UserData: udata,
				Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
				EOF:      ev.Events&unix.EPOLLRDHUP != 0 || ev.Events&unix.EPOLLHUP != 0,
				Error:    ev.Events&unix.EPOLLERR != 0,
			}
			count++
		}
	}
	b.mu.Unlock()
	return count, nil
}

// drainWriteLocked performs a non-blocking epoll_wait on the write-interest
// instance; caller holds b.mu.
func (b *epollBackend) drainWriteLocked(out []api.RawEvent) int {
	n, err := unix.EpollWait(b.writeFD, b.wrawBuf, 0)
	if err != nil || n <= 0 {
		return 0
	}
	count := 0
	for i := 0; i < n && count < len(out); i++ {
		ev := b.wrawBuf[i]
		fd := int(ev.Fd)
		udata, ok := b.udataW[fd]
		if !ok {
			continue
		}
		out[count] = api.RawEvent{
			UserData: udata,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			EOF:      ev.Events&unix.EPOLLHUP != 0,
			Error:    ev.Events&unix.EPOLLERR != 0,
		}
		count++
	}
	return count
}

func (b *epollBackend) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(b.wakeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return api.NewPortError(api.CallEventfd, err)
	}
	return nil
}

func (b *epollBackend) Close() error {
	unix.Close(b.writeFD)
	unix.Close(b.wakeFD)
	return unix.Close(b.readFD)
}
