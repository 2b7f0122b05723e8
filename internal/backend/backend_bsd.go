//go:build darwin || dragonfly || freebsd || netbsd || openbsd
// +build darwin dragonfly freebsd netbsd openbsd

// File: internal/backend/backend_bsd.go
// Author: momentics <momentics@gmail.com>
//
// kqueue(2)-based Backend. kqueue stores a caller-supplied udata value per
// (ident, filter) registration and hands it straight back in the
// corresponding kevent, so — unlike epoll, where EPOLL_CTL_MOD clobbers
// whatever was registered for the other direction — a single kqueue
// descriptor natively supports independent read and write registrations on
// the same fd with distinct udata. The wake mechanism is an EVFILT_USER
// trigger registered at ident 0, grounded on the corpus's
// trpc-group/tnet poller_kqueue.go and searchktools-fast-server's kqueue
// poller, both of which stash a pointer in kevent udata the same way.

package backend

import (
	"sync"
	"unsafe"

	"github.com/cyclemux/cyclemux/api"
	"golang.org/x/sys/unix"
)

func unsafeFromUintptr(p uintptr) unsafe.Pointer { return unsafe.Pointer(p) } //nolint:govet
func uintptrFromUnsafe(p *byte) uintptr          { return uintptr(unsafe.Pointer(p)) }

const (
	maxKeventBatch = 128
	wakeIdent      = 0
)

type kqueueBackend struct {
	fd int

	mu  sync.Mutex
	buf []unix.Kevent_t
}

// New creates a BSD/Darwin kqueue Backend.
func New() (api.Backend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, api.NewPortError(api.CallKqueue, err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, api.NewPortError(api.CallFcntl, err)
	}
	b := &kqueueBackend{
		fd:  fd,
		buf: make([]unix.Kevent_t, maxKeventBatch),
	}
	wake := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{wake}, nil, nil); err != nil {
		unix.Close(fd)
		return nil, api.NewPortError(api.CallKevent, err)
	}
	return b, nil
}

func (b *kqueueBackend) change(fd int, filter int16, flags uint16, udata uintptr) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
		Udata:  (*byte)(unsafeFromUintptr(udata)),
	}
	_, err := unix.Kevent(b.fd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) Register(fd int, interest api.Interest, udata uintptr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if interest&api.InterestRead != 0 {
		if err := b.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR|unix.EV_ENABLE, udata); err != nil {
			return api.NewPortError(api.CallKevent, err)
		}
	}
	if interest&api.InterestWrite != 0 {
		if err := b.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR|unix.EV_ENABLE, udata); err != nil {
			return api.NewPortError(api.CallKevent, err)
		}
	}
	return nil
}

func (b *kqueueBackend) Modify(fd int, interest api.Interest, udata uintptr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if interest&api.InterestRead != 0 {
		if err := b.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR|unix.EV_ENABLE, udata); err != nil {
			return api.NewPortError(api.CallKevent, err)
		}
	} else {
		b.change(fd, unix.EVFILT_READ, unix.EV_DELETE, 0)
	}
	if interest&api.InterestWrite != 0 {
		if err := b.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR|unix.EV_ENABLE, udata); err != nil {
			return api.NewPortError(api.CallKevent, err)
		}
	} else {
		b.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE, 0)
	}
	return nil
}

func (b *kqueueBackend) Unregister(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.change(fd, unix.EVFILT_READ, unix.EV_DELETE, 0)
	b.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE, 0)
	return nil
}

func (b *kqueueBackend) Wait(out []api.RawEvent, timeoutMillis int) (int, error) {
	var ts *unix.Timespec
	var t unix.Timespec
	if timeoutMillis >= 0 {
		t = unix.NsecToTimespec(int64(timeoutMillis) * 1_000_000)
		ts = &t
	}

	n, err := unix.Kevent(b.fd, nil, b.buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.NewPortError(api.CallKevent, err)
	}

	count := 0
	for i := 0; i < n && count < len(out); i++ {
		kev := b.buf[i]
		if kev.Ident == wakeIdent && kev.Filter == unix.EVFILT_USER {
			continue
		}
		udata := uintptrFromUnsafe(kev.Udata)
		if udata == 0 {
			continue
		}
		out[count] = api.RawEvent{
			UserData: udata,
			Readable: kev.Filter == unix.EVFILT_READ,
			Writable: kev.Filter == unix.EVFILT_WRITE,
			EOF:      kev.Flags&unix.EV_EOF != 0,
			Error:    kev.Flags&unix.EV_ERROR != 0,
		}
		count++
	}
	return count, nil
}

func (b *kqueueBackend) Wake() error {
	trigger := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(b.fd, []unix.Kevent_t{trigger}, nil, nil)
	if err != nil {
		return api.NewPortError(api.CallKevent, err)
	}
	return nil
}

func (b *kqueueBackend) Close() error {
	return unix.Close(b.fd)
}
