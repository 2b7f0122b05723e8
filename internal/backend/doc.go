// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package backend provides the kqueue (BSD/Darwin) and epoll (Linux)
// implementations of api.Backend that the core Array cycle drives once per
// cycle. Grounded on the teacher's reactor/reactor_linux.go and
// reactor/epoll_reactor.go, and on the corpus's other kqueue pollers
// (trpc-group/tnet's internal/poller/poller_kqueue.go in particular) for the
// EVFILT_USER wake idiom.
package backend
