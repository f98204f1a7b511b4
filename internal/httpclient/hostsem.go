package httpclient

import (
	"net/url"
	"sync"
)

// HostSemaphore is a process-global per-host concurrency limiter.
// Every stream source in the process shares the same semaphore for a
// given upstream, so a pipeline with many sources on one provider
// reconnects them a few at a time instead of all at once.
//
//	release := GlobalHostSem.Acquire(url)
//	resp, err := client.Do(req)
//	release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// GlobalHostSem is the shared per-host limiter: at most 4 in-flight
// connection attempts per host across the whole process.
var GlobalHostSem = NewHostSemaphore(4)

// NewHostSemaphore returns a limiter allowing concurrency in-flight
// requests per host.
func NewHostSemaphore(concurrency int) *HostSemaphore {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot is free for rawurl's host and returns
// the release func. rawurl may be a full URL; only scheme+host key the
// semaphore.
func (h *HostSemaphore) Acquire(rawurl string) func() {
	sem := h.semFor(rawurl)
	sem <- struct{}{}
	return func() { <-sem }
}

func (h *HostSemaphore) semFor(rawurl string) chan struct{} {
	key := rawurl
	if u, err := url.Parse(rawurl); err == nil {
		key = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	s, ok := h.sems[key]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[key] = s
	}
	h.mu.Unlock()
	return s
}
