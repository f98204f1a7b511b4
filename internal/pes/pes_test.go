package pes

import (
	"bytes"
	"testing"

	"github.com/astrasm/astra-go/internal/tscore"
)

// buildPES renders a minimal PES packet (basic header + PTS-only
// optional header + payload) the same way a real encoder would, for
// use as reassembler input.
func buildPES(streamID byte, pts uint64, payload []byte) []byte {
	declaredLen := optionalFixedSize + 5 + len(payload)
	out := make([]byte, 0, basicHeaderSize+optionalFixedSize+5+len(payload))
	out = append(out, 0x00, 0x00, 0x01, streamID, byte(declaredLen>>8), byte(declaredLen))
	out = append(out, 0x80, 0x02<<6, 5)
	ptsBuf := make([]byte, 5)
	tscore.EncodeTimestamp33(0x2, pts, ptsBuf)
	out = append(out, ptsBuf...)
	out = append(out, payload...)
	return out
}

// packetizeRaw slices a raw byte stream (as produced by buildPES) into
// 188-byte TS packets on pid, starting CC at 0, with PUSI set on the
// first packet and a PCR carried in that same packet's adaptation
// field when pcr is non-nil. The last packet is padded with
// adaptation-field stuffing when it does not fill a whole packet.
func packetizeRaw(t *testing.T, pid uint16, data []byte, pcr *uint64) [][]byte {
	t.Helper()
	var pkts [][]byte
	off := 0
	cc := byte(0)
	for off < len(data) {
		pkt := make([]byte, tscore.PacketSize)
		pkt[0] = tscore.SyncByte
		p := tscore.Packet(pkt)
		p.SetPID(pid)
		p.SetCC(cc)
		cc = (cc + 1) & 0x0F
		isFirst := off == 0
		if isFirst {
			p.SetPUSI(true)
		}

		afLen := 0
		hasAF := false
		if isFirst && pcr != nil {
			pkt[5] |= 0x10
			tscore.EncodePCR(*pcr, pkt[6:12])
			afLen = 7
			hasAF = true
		}
		headOff := 4
		if hasAF {
			headOff = 5 + afLen
		}

		remain := len(data) - off
		space := tscore.PacketSize - headOff
		if space > remain {
			stuffing := space - remain
			if !hasAF {
				pkt[5] = 0
				afLen = 1
				hasAF = true
				headOff = 5 + afLen
				space = tscore.PacketSize - headOff
				stuffing = space - remain
			}
			stuffStart := 5 + afLen
			afLen += stuffing
			headOff = 5 + afLen
			space = tscore.PacketSize - headOff
			for i := 0; i < stuffing; i++ {
				pkt[stuffStart+i] = 0xFF
			}
		}
		if hasAF {
			pkt[3] |= 0x20
			pkt[4] = byte(afLen)
		}
		pkt[3] |= 0x10 // payload present

		n := space
		if n > remain {
			n = remain
		}
		copy(pkt[headOff:], data[off:off+n])
		off += n

		pkts = append(pkts, pkt)
	}
	return pkts
}

// TestPESRoundTripReconstructsExactBytes feeds a PES packet spread
// across several TS packets, with
// a PCR on the first, and check the remuxed TS packets reconstruct the
// exact original header+payload bytes with a well-formed CC/PUSI/AF
// sequence.
func TestPESRoundTripReconstructsExactBytes(t *testing.T) {
	const pid = 0x101
	payload := bytes.Repeat([]byte{0xAB}, 1300)
	pts := uint64(0x123456789)
	raw := buildPES(0xE0, pts, payload)

	pcr := uint64(900000)
	inputPkts := packetizeRaw(t, pid, raw, &pcr)
	if len(inputPkts) < 2 {
		t.Fatalf("test setup produced only %d input packets, want several", len(inputPkts))
	}

	a := NewAssembler(pid)
	var outPkts [][]byte
	var gotPTS uint64
	var gotPCR uint64
	var pcrOK bool
	a.OnPES = func(h *Header) {
		gotPTS = h.PTS
	}
	a.OnTS = func(pkt []byte) {
		cp := append([]byte(nil), pkt...)
		outPkts = append(outPkts, cp)
	}

	for _, raw := range inputPkts {
		a.Mux(tscore.Packet(raw))
	}

	if gotPTS != pts {
		t.Fatalf("OnPES saw PTS %#x, want %#x", gotPTS, pts)
	}
	if len(outPkts) == 0 {
		t.Fatal("no output TS packets produced")
	}

	for i, pkt := range outPkts {
		p := tscore.Packet(pkt)
		if err := p.Validate(); err != nil {
			t.Fatalf("output packet %d invalid: %v", i, err)
		}
		if p.PID() != pid {
			t.Fatalf("output packet %d PID = %#x, want %#x", i, p.PID(), pid)
		}
		wantPUSI := i == 0
		if p.PUSI() != wantPUSI {
			t.Fatalf("output packet %d PUSI = %v, want %v", i, p.PUSI(), wantPUSI)
		}
		wantCC := byte(i) & 0x0F
		if p.CC() != wantCC {
			t.Fatalf("output packet %d CC = %d, want %d (P3: advances by exactly 1)", i, p.CC(), wantCC)
		}
	}

	// P4: the PCR on the input's first packet of a PES appears
	// unchanged on the first output TS packet in normal mode.
	gotPCR, pcrOK = tscore.Packet(outPkts[0]).PCR()
	if !pcrOK {
		t.Fatal("first output packet carries no PCR")
	}
	if gotPCR != pcr {
		t.Fatalf("first output packet PCR = %d, want %d", gotPCR, pcr)
	}
	for i := 1; i < len(outPkts); i++ {
		if _, ok := tscore.Packet(outPkts[i]).PCR(); ok {
			t.Fatalf("output packet %d unexpectedly carries a PCR", i)
		}
	}

	var rebuilt []byte
	for _, pkt := range outPkts {
		rebuilt = append(rebuilt, tscore.Packet(pkt).Payload()...)
	}
	if !bytes.Equal(rebuilt, raw) {
		t.Fatalf("reassembled+remuxed bytes differ from the original PES bytes\nlen got=%d want=%d", len(rebuilt), len(raw))
	}
}

// TestCCDiscontinuityForcesTruncatedFlush exercises the CC
// discontinuity path: a dropped input packet (CC gap) forces an early
// demux of whatever was buffered and is counted in Truncated.
func TestCCDiscontinuityForcesTruncatedFlush(t *testing.T) {
	const pid = 0x101
	payload := bytes.Repeat([]byte{0x11}, 1000)
	raw := buildPES(0xE0, 12345, payload)
	inputPkts := packetizeRaw(t, pid, raw, nil)
	if len(inputPkts) < 3 {
		t.Fatalf("need at least 3 input packets, got %d", len(inputPkts))
	}

	a := NewAssembler(pid)
	var onPESCalls int
	var ccs []byte
	a.OnPES = func(*Header) { onPESCalls++ }
	a.OnTS = func(p []byte) { ccs = append(ccs, tscore.Packet(p).CC()) }

	a.Mux(tscore.Packet(inputPkts[0]))
	// Skip a CC value on the second packet to simulate a dropped packet.
	tscore.Packet(inputPkts[1]).SetCC((tscore.Packet(inputPkts[1]).CC() + 1) & 0x0F)
	a.Mux(tscore.Packet(inputPkts[1]))

	if a.Truncated != 1 {
		t.Fatalf("Truncated = %d, want 1 after a CC discontinuity", a.Truncated)
	}
	if onPESCalls != 1 {
		t.Fatalf("OnPES called %d times, want exactly 1 (the forced flush carries no new PES header)", onPESCalls)
	}
	flushCount := len(ccs)
	if flushCount == 0 {
		t.Fatal("the forced flush produced no output packets")
	}
	for i := 1; i < flushCount; i++ {
		if ccs[i] != (ccs[i-1]+1)&0x0F {
			t.Fatalf("flush output CC jumped %d -> %d within a contiguous run", ccs[i-1], ccs[i])
		}
	}

	// The next output after the gap must advance the CC by exactly
	// two, mirroring the loss downstream.
	rawNext := buildPES(0xE0, 777, bytes.Repeat([]byte{0x33}, 100))
	for _, pkt := range packetizeRaw(t, pid, rawNext, nil) {
		a.Mux(tscore.Packet(pkt))
	}
	if len(ccs) <= flushCount {
		t.Fatal("no output produced after the discontinuity")
	}
	last, next := ccs[flushCount-1], ccs[flushCount]
	if next != (last+2)&0x0F {
		t.Fatalf("CC across discontinuity advanced %d -> %d, want a skip of exactly 2", last, next)
	}
}

// TestFastModeEmitsBeforeFullReassembly checks that ModeFast starts
// producing TS packets as soon as a body's worth of bytes is
// buffered, rather than waiting for the full declared length.
func TestFastModeEmitsBeforeFullReassembly(t *testing.T) {
	const pid = 0x101
	payload := bytes.Repeat([]byte{0x22}, 2000)
	raw := buildPES(0xE0, 1, payload)
	inputPkts := packetizeRaw(t, pid, raw, nil)

	a := NewAssembler(pid)
	a.Mode = ModeFast
	var outCount int
	a.OnTS = func([]byte) { outCount++ }

	// Feed only the first two input packets: well short of the full
	// declared length, but more than one TS body's worth of payload.
	a.Mux(tscore.Packet(inputPkts[0]))
	a.Mux(tscore.Packet(inputPkts[1]))

	if outCount == 0 {
		t.Fatal("ModeFast produced no output before the PES was fully reassembled")
	}
}

func TestHeaderLenExcludesBasicHeader(t *testing.T) {
	a := NewAssembler(0x100)
	a.hdr.StreamID = 0xE0
	a.optHdrDataLen = 5
	if got := a.headerLen(); got != optionalFixedSize+5 {
		t.Fatalf("headerLen() = %d, want %d", got, optionalFixedSize+5)
	}

	a.hdr.StreamID = 0xBE // padding_stream: no optional header
	if got := a.headerLen(); got != 0 {
		t.Fatalf("headerLen() for padding_stream = %d, want 0", got)
	}
}
