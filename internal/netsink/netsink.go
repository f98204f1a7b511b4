// Package netsink implements a TCP TS output sink with a connection
// cap and per-connection output shaping, so a slow client cannot make
// the sync buffer (internal/syncbuf) backpressure into the whole
// streaming graph. Each client gets its own goroutine and bounded
// channel, so a stalled consumer never blocks the producer.
package netsink

import (
	"context"
	"net"
	"sync"

	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/tscore"
)

const logTag = "netsink"

// clientQueueDepth bounds how many packets may be buffered for one
// slow client before newer packets are dropped rather than blocking
// the sink's Send, per the engine's non-blocking-TS-callback rule.
const clientQueueDepth = 512

// Sink accepts TCP connections and relays every packet given to Send
// to each currently connected client, each shaped by its own token
// bucket so one client's rate cannot starve another's.
type Sink struct {
	ln net.Listener

	// BytesPerSec bounds each client's write rate; 0 disables shaping.
	BytesPerSec int

	mu      sync.Mutex
	clients map[*client]struct{}

	Dropped int64 // packets dropped for a client whose queue was full
}

type client struct {
	conn    net.Conn
	queue   chan []byte
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

// Listen binds addr and caps concurrent connections at maxClients via
// golang.org/x/net/netutil.LimitListener.
func Listen(addr string, maxClients int) (*Sink, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if maxClients > 0 {
		ln = netutil.LimitListener(ln, maxClients)
	}
	return &Sink{ln: ln, clients: make(map[*client]struct{})}, nil
}

// Addr returns the sink's bound address.
func (s *Sink) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until the listener is closed. Intended to
// run on its own goroutine (C5 auxiliary worker), never on the main
// loop goroutine, since Accept blocks.
func (s *Sink) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.addClient(conn)
	}
}

func (s *Sink) addClient(conn net.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:    conn,
		queue:   make(chan []byte, clientQueueDepth),
		limiter: newLimiter(s.BytesPerSec),
		cancel:  cancel,
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.drive(ctx, c)
}

func newLimiter(bytesPerSec int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
}

func (s *Sink) drive(ctx context.Context, c *client) {
	defer func() {
		c.conn.Close()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-c.queue:
			if !ok {
				return
			}
			if err := c.limiter.WaitN(ctx, len(pkt)); err != nil {
				return
			}
			if _, err := c.conn.Write(pkt); err != nil {
				corelog.Warningf(logTag, "write to %s failed: %v", c.conn.RemoteAddr(), err)
				return
			}
		}
	}
}

// Send fans pkt out to every connected client without blocking the
// caller: a client whose queue is full has the packet dropped for it
// (counted in Dropped) rather than stalling the producer.
func (s *Sink) Send(pkt []byte) {
	buf := make(tscore.Packet, len(pkt))
	copy(buf, pkt)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.queue <- []byte(buf):
		default:
			s.Dropped++
		}
	}
}

// NumClients returns the current connected-client count.
func (s *Sink) NumClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting new connections and disconnects every client.
func (s *Sink) Close() error {
	err := s.ln.Close()

	s.mu.Lock()
	for c := range s.clients {
		c.cancel()
	}
	s.mu.Unlock()

	return err
}
