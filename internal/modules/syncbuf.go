package modules

import (
	"fmt"

	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/syncbuf"
	"github.com/astrasm/astra-go/internal/timer"
	"github.com/astrasm/astra-go/internal/tscore"
)

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "syncbuf",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &SyncBufferModule{} },
	})
}

// SyncBufferModule paces output from a jittery input at a steady TS
// rate, wrapping internal/syncbuf.Buffer as a graph pipe.
type SyncBufferModule struct {
	streamgraph.Base
	buf *syncbuf.Buffer
}

// Init reads the optional "opts" sync-buffer option string (default
// "10,5,8") and the optional "bitrate" bits-per-second override.
func (m *SyncBufferModule) Init(h scripthost.Host) error {
	optsStr, ok := h.OptionStr("opts")
	if !ok {
		optsStr = Defaults.SyncOpts
	}
	opts, err := syncbuf.ParseOptions(optsStr)
	if err != nil {
		return fmt.Errorf("syncbuf: %w", err)
	}

	m.Base = streamgraph.NewBase("syncbuf", streamgraph.KindPipe)
	m.Base.Bind(m)
	m.buf = syncbuf.New(opts)
	m.buf.OnTS = m.Base.SendToChildren

	if bitrate, ok := h.OptionInt("bitrate"); ok {
		m.buf.SetBitrate(int64(bitrate))
	}
	return nil
}

// Node returns this instance's graph participation.
func (m *SyncBufferModule) Node() streamgraph.Node { return m }

// Send pushes pkt into the buffer.
func (m *SyncBufferModule) Send(pkt []byte) {
	cp := make(tscore.Packet, len(pkt))
	copy(cp, pkt)
	m.buf.Push([][]byte{[]byte(cp)})
}

// Schedule registers the buffer's pacing drain on tw at
// syncbuf.SyncInterval, satisfying the Scheduled interface so
// cmd/astrad can wire it without internal/modules depending on
// internal/mainloop.
func (m *SyncBufferModule) Schedule(tw *timer.Wheel) {
	tw.Schedule(syncbuf.SyncInterval, m.buf.Loop)
}

// Query exposes the buffer's current Stat for health/diagnostics
// reporting.
func (m *SyncBufferModule) Query() syncbuf.Stat { return m.buf.Query() }

// Destroy resets the buffer so a torn-down module holds no packets.
func (m *SyncBufferModule) Destroy() { m.buf.Reset() }
