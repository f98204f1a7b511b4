// Package event implements the readiness-based file descriptor
// multiplexer at the center of the main loop, backed by
// golang.org/x/sys/unix.Poll.
package event

import (
	"time"

	"golang.org/x/sys/unix"
)

// Handle represents one registered descriptor and its callbacks.
type Handle struct {
	fd      int
	onRead  func()
	onWrite func()
	onError func()
	closed  bool
}

// OnRead sets the read-readiness callback.
func (h *Handle) OnRead(cb func()) { h.onRead = cb }

// OnWrite sets the write-readiness callback.
func (h *Handle) OnWrite(cb func()) { h.onWrite = cb }

// OnError sets the error callback, fired when poll reports POLLERR or
// POLLHUP for this descriptor.
func (h *Handle) OnError(cb func()) { h.onError = cb }

// Loop multiplexes readiness across all registered handles.
type Loop struct {
	handles map[int]*Handle
}

// NewLoop returns an empty multiplexer.
func NewLoop() *Loop {
	return &Loop{handles: make(map[int]*Handle)}
}

// Add registers fd for readiness notification and returns its Handle.
func (l *Loop) Add(fd int) *Handle {
	h := &Handle{fd: fd}
	l.handles[fd] = h
	return h
}

// Remove deregisters h. Safe to call from within a callback invoked
// during Run: removal only affects the next Run call, since Run
// dispatches from a snapshot taken before any callback executes.
func (l *Loop) Remove(h *Handle) {
	h.closed = true
	delete(l.handles, h.fd)
}

// Run polls all registered descriptors, blocking up to timeout, and
// dispatches readiness callbacks. It returns false only when the
// underlying poll call fails unrecoverably, signaling the caller
// (internal/mainloop) to treat this as "restart the instance".
func (l *Loop) Run(timeout time.Duration) bool {
	if len(l.handles) == 0 {
		// Nothing registered: still honor the sleep so timers make
		// progress, but there is nothing to poll.
		time.Sleep(timeout)
		return true
	}

	pfds := make([]unix.PollFd, 0, len(l.handles))
	order := make([]*Handle, 0, len(l.handles))
	for _, h := range l.handles {
		var events int16 = unix.POLLIN
		if h.onWrite != nil {
			events |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(h.fd), Events: events})
		order = append(order, h)
	}

	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = 0
	}

	n, err := unix.Poll(pfds, ms)
	if err != nil {
		if err == unix.EINTR {
			return true
		}
		return false
	}
	if n == 0 {
		return true
	}

	// Snapshot which handles are ready before dispatching any
	// callback, so a callback that removes another handle mid-loop
	// cannot cause a double dispatch or a dispatch on a stale fd.
	type ready struct {
		h             *Handle
		r, w, errFlag bool
	}
	var due []ready
	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		h := order[i]
		due = append(due, ready{
			h:       h,
			r:       pfd.Revents&unix.POLLIN != 0,
			w:       pfd.Revents&unix.POLLOUT != 0,
			errFlag: pfd.Revents&(unix.POLLERR|unix.POLLHUP) != 0,
		})
	}

	for _, d := range due {
		if d.h.closed {
			continue
		}
		if d.errFlag && d.h.onError != nil {
			d.h.onError()
			continue
		}
		if d.r && d.h.onRead != nil {
			d.h.onRead()
		}
		if !d.h.closed && d.w && d.h.onWrite != nil {
			d.h.onWrite()
		}
	}

	return true
}
