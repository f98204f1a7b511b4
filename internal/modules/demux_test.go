package modules

import (
	"testing"

	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/tscore"
)

func TestDemuxModuleFiltersByJoinedPID(t *testing.T) {
	var m DemuxModule
	if err := m.Init(newFakeHost(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sink := streamgraph.NewSink("sink")
	demux, ok := m.Node().(*streamgraph.Demux)
	if !ok {
		t.Fatalf("Node() = %T, want *streamgraph.Demux", m.Node())
	}
	demux.Attach(sink)
	demux.JoinChild(sink, 0x200)

	var received int
	sink.OnTS = func([]byte) { received++ }

	pkt := make([]byte, tscore.PacketSize)
	pkt[0] = tscore.SyncByte
	tscore.Packet(pkt).SetPID(0x200)
	demux.Send(pkt)

	other := make([]byte, tscore.PacketSize)
	other[0] = tscore.SyncByte
	tscore.Packet(other).SetPID(0x201)
	demux.Send(other)

	if received != 1 {
		t.Fatalf("sink received %d packets, want 1", received)
	}
}
