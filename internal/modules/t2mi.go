package modules

import (
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/t2mi"
)

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "t2mi",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &T2MIModule{} },
	})
}

// T2MIModule wraps internal/t2mi.Decapsulator and
// internal/streamgraph.Decap as a single scripthost instance.
type T2MIModule struct {
	decap *t2mi.Decapsulator
	node  *streamgraph.Decap
}

// Init reads the optional "pnr" (program number to resolve the outer
// T2-MI PID from PAT/PMT), "pid" (force the outer PID directly,
// skipping PAT/PMT resolution) and "plp" (defaults to AUTO) options.
func (m *T2MIModule) Init(h scripthost.Host) error {
	d := t2mi.New("t2mi")
	if pnr, ok := h.OptionInt("pnr"); ok {
		d.PayloadPNR = uint16(pnr)
	}
	if pid, ok := h.OptionInt("pid"); ok {
		d.PayloadPID = uint16(pid)
	}
	if plp, ok := h.OptionInt("plp"); ok {
		d.PLP = uint16(plp)
	} else {
		d.PLP = Defaults.T2MIPLP
	}
	m.decap = d
	m.node = streamgraph.NewDecap("t2mi", d)
	return nil
}

// Node returns this instance's graph participation.
func (m *T2MIModule) Node() streamgraph.Node { return m.node }

// Destroy is a no-op: the decapsulator holds no external resources.
func (m *T2MIModule) Destroy() {}
