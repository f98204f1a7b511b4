// Package wake implements the main loop's wake-up signal: a loopback
// socket pair that lets any goroutine interrupt a blocked poll.
package wake

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Pipe is a refcounted, reopenable loopback signal backed by a
// socketpair: the descriptors are created on the 0->1 transition and
// torn down on the 1->0 transition.
type Pipe struct {
	mu    sync.Mutex
	count int
	rfd   int
	wfd   int

	// OnError is invoked if the pipe needed to be reopened after an
	// unexpected error or EOF on the read side.
	OnError func(error)
}

// Open increments the refcount, creating the socketpair if this is
// the first reference.
func (p *Pipe) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		if err := p.open(); err != nil {
			return err
		}
	}
	p.count++
	return nil
}

func (p *Pipe) open() error {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return err
	}
	p.rfd, p.wfd = fds[0], fds[1]
	return nil
}

// Close decrements the refcount, tearing down the descriptors when it
// reaches zero.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		panic("wake: Close of already-closed Pipe")
	}
	p.count--
	if p.count == 0 {
		p.close()
	}
}

func (p *Pipe) close() {
	if p.rfd != 0 {
		unix.Close(p.rfd)
	}
	if p.wfd != 0 {
		unix.Close(p.wfd)
	}
	p.rfd, p.wfd = 0, 0
}

// Wake sends a single byte, unblocking a pending poll registered on
// ReadFD. A failed write is reported via OnError; a write that would
// block is silently ignored, since an unread wake byte already means
// the loop has a pending kick.
func (p *Pipe) Wake() {
	p.mu.Lock()
	fd := p.wfd
	p.mu.Unlock()

	if fd == 0 {
		return
	}
	_, err := unix.Write(fd, []byte{0})
	if err != nil && err != unix.EAGAIN && p.OnError != nil {
		p.OnError(err)
	}
}

// ReadFD exposes the read side for registration with internal/event.
func (p *Pipe) ReadFD() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rfd
}

// Drain reads and discards up to 32 pending bytes per readiness
// notification. On a hard error or EOF it reopens the pipe in place
// and reports the error via OnError.
func (p *Pipe) Drain() {
	p.mu.Lock()
	fd := p.rfd
	p.mu.Unlock()
	if fd == 0 {
		return
	}

	buf := make([]byte, 32)
	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN {
		return
	}
	if err != nil {
		p.reopen(err)
		return
	}
	if n == 0 {
		p.reopen(nil)
	}
}

func (p *Pipe) reopen(err error) {
	p.mu.Lock()
	p.close()
	reopenErr := p.open()
	p.mu.Unlock()

	if p.OnError != nil {
		if err != nil {
			p.OnError(err)
		}
		if reopenErr != nil {
			p.OnError(reopenErr)
		}
	}
}
