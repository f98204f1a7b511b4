// Package worker supervises auxiliary goroutines that perform blocking
// work off the main loop goroutine, marshaling their results back
// through internal/jobqueue so completion handlers always run on the
// main loop.
package worker

import (
	"sync"

	"github.com/astrasm/astra-go/internal/jobqueue"
)

// Handle identifies one in-flight worker for Join/Prune purposes.
type Handle struct {
	done chan struct{}
}

// Supervisor tracks outstanding workers so Shutdown can wait for all
// of them to finish.
type Supervisor struct {
	jobs *jobqueue.Queue

	mu      sync.Mutex
	pending map[*Handle]struct{}
}

// New returns a Supervisor that deposits completion callbacks on jobs.
func New(jobs *jobqueue.Queue) *Supervisor {
	return &Supervisor{jobs: jobs, pending: make(map[*Handle]struct{})}
}

// Start launches proc(arg) on a new goroutine. When proc returns,
// onClose(arg, result) is queued on the job queue so it executes on
// the main loop goroutine, never concurrently with streaming
// callbacks.
func (s *Supervisor) Start(arg any, proc func(any) any, onClose func(arg, result any)) *Handle {
	h := &Handle{done: make(chan struct{})}

	s.mu.Lock()
	s.pending[h] = struct{}{}
	s.mu.Unlock()

	go func() {
		result := proc(arg)
		s.jobs.Push(h, func() {
			if onClose != nil {
				onClose(arg, result)
			}
			s.mu.Lock()
			delete(s.pending, h)
			s.mu.Unlock()
			close(h.done)
		})
	}()

	return h
}

// Join blocks until h's onClose callback has run and removes any
// stray queued jobs still tagged with h (used when a node is torn
// down before its worker finishes).
func (s *Supervisor) Join(h *Handle) {
	<-h.done
	s.jobs.Prune(h)
}

// Shutdown waits for every outstanding worker to finish. Callers must
// still be draining the job queue (e.g. via internal/mainloop) for
// their onClose callbacks to run and unblock this call.
func (s *Supervisor) Shutdown() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		var next *Handle
		for h := range s.pending {
			next = h
			break
		}
		s.mu.Unlock()
		<-next.done
	}
}
