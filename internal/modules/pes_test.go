package modules

import (
	"testing"

	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/tscore"
)

func TestPESModuleInitRequiresPID(t *testing.T) {
	var m PESModule
	if err := m.Init(newFakeHost(nil)); err == nil {
		t.Fatal("expected error for missing pid option")
	}
}

func TestPESModuleBindsSelfAndFansOutAssembledPackets(t *testing.T) {
	var m PESModule
	if err := m.Init(newFakeHost(map[string]any{"pid": 0x100})); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sink := streamgraph.NewSink("sink")
	m.Attach(sink)
	if sink.Parent() != m.Node() {
		t.Fatalf("sink.Parent() = %v, want the PESModule itself", sink.Parent())
	}

	// A packet carrying no valid PES start code is simply buffered
	// internally and produces no output; the important thing here is
	// that Send does not panic and exercises the assembler wiring.
	pkt := make([]byte, tscore.PacketSize)
	pkt[0] = tscore.SyncByte
	tscore.Packet(pkt).SetPID(0x100)
	m.Send(pkt)
}
