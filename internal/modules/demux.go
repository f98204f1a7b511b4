package modules

import (
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
)

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "demux",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &DemuxModule{} },
	})
}

// DemuxModule exposes internal/streamgraph.Demux as a scripthost
// instance so a pipeline document can declare a PID-filtering fan-out
// point without any Go-level wiring.
type DemuxModule struct {
	node *streamgraph.Demux
}

// Init takes no options; PID subscriptions are established by
// attaching children through internal/scripthost/jsonhost's "join"
// declarations, not by Init-time configuration.
func (m *DemuxModule) Init(h scripthost.Host) error {
	m.node = streamgraph.NewDemux("demux")
	return nil
}

// Node returns this instance's graph participation.
func (m *DemuxModule) Node() streamgraph.Node { return m.node }

// Destroy is a no-op: the demux holds no external resources.
func (m *DemuxModule) Destroy() {}
