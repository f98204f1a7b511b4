package modules

import (
	"fmt"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/netsink"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/wake"
	"github.com/astrasm/astra-go/internal/worker"
)

const logTagNetSink = "netsink"

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "sink.net",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &NetSinkModule{} },
	})
}

// NetSinkModule exposes internal/netsink.Sink as a terminal streaming
// module: packets reaching it are relayed to every connected TCP
// client.
type NetSinkModule struct {
	streamgraph.Base
	sink *netsink.Sink
}

// Init reads the required "listen" address, the optional "clients"
// connection cap (default 16) and the optional "rate" per-client
// bytes-per-second shaping limit (0 disables shaping).
func (m *NetSinkModule) Init(h scripthost.Host) error {
	addr, ok := h.OptionStr("listen")
	if !ok || addr == "" {
		return fmt.Errorf("sink.net: missing required option \"listen\"")
	}
	maxClients, ok := h.OptionInt("clients")
	if !ok {
		maxClients = 16
	}

	sink, err := netsink.Listen(addr, maxClients)
	if err != nil {
		return fmt.Errorf("sink.net: listen %s: %w", addr, err)
	}
	if rate, ok := h.OptionInt("rate"); ok {
		sink.BytesPerSec = rate
	}
	m.sink = sink
	m.Base = streamgraph.NewBase("sink.net:"+addr, streamgraph.KindSink)
	m.Base.Bind(m)
	return nil
}

// Node returns this instance's graph participation.
func (m *NetSinkModule) Node() streamgraph.Node { return m }

// Send relays pkt to every connected client.
func (m *NetSinkModule) Send(pkt []byte) { m.sink.Send(pkt) }

// Pump runs the sink's Accept loop on an auxiliary goroutine; accepted
// clients are driven entirely within internal/netsink and never touch
// the job queue, since a client write failure needs no main-loop
// callback.
func (m *NetSinkModule) Pump(jobs *jobqueue.Queue, wk *wake.Pipe, sup *worker.Supervisor) {
	sup.Start(m, func(any) any {
		m.sink.Serve()
		return nil
	}, func(any, any) {
		corelog.Infof(logTagNetSink, "%s: accept loop stopped", m.Name())
	})
}

// Destroy stops accepting new connections and disconnects every
// client.
func (m *NetSinkModule) Destroy() {
	if err := m.sink.Close(); err != nil {
		corelog.Warningf(logTagNetSink, "%s: close: %v", m.Name(), err)
	}
}
