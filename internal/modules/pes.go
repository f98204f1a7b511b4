package modules

import (
	"fmt"

	"github.com/astrasm/astra-go/internal/pes"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/tscore"
)

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "pes",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &PESModule{} },
	})
}

// PESModule reassembles PES packets from one PID's TS packets and
// re-packetizes them with timing, fanning the re-packetized TS out to
// its children.
type PESModule struct {
	streamgraph.Base
	asm *pes.Assembler
}

// Init reads the required "pid" option and the optional "mode"
// option ("normal", the default, or "fast").
func (m *PESModule) Init(h scripthost.Host) error {
	pid, ok := h.OptionInt("pid")
	if !ok {
		return fmt.Errorf("pes: missing required option \"pid\"")
	}
	m.Base = streamgraph.NewBase(fmt.Sprintf("pes:%d", pid), streamgraph.KindPipe)
	m.Base.Bind(m)
	m.asm = pes.NewAssembler(uint16(pid))

	if modeStr, ok := h.OptionStr("mode"); ok && modeStr == "fast" {
		m.asm.Mode = pes.ModeFast
	}
	m.asm.OnTS = m.Base.SendToChildren
	return nil
}

// Node returns this instance's graph participation.
func (m *PESModule) Node() streamgraph.Node { return m }

// Send feeds pkt into the reassembler.
func (m *PESModule) Send(pkt []byte) {
	m.asm.Mux(tscore.Packet(pkt))
}

// Destroy is a no-op: the assembler holds no external resources.
func (m *PESModule) Destroy() {}
