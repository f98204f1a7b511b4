// Package pes implements PES (Packetized Elementary Stream)
// reassembly from TS packets and re-packetization back to TS with
// timing propagation.
package pes

import (
	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/tscore"
)

// MaxBuffer bounds the reassembly buffer for a PES packet whose
// declared length is unspecified (common for video elementary
// streams); longer packets are truncated and counted.
const MaxBuffer = 512 * 1024

// basicHeaderSize is the fixed portion of every PES packet: the
// 0x000001 start code, the one-byte stream_id, and the two-byte
// pes_packet_length field.
const basicHeaderSize = 6

// optionalFixedSize is the fixed portion of the optional PES header
// present for stream IDs that carry one: two flag bytes plus the
// header_data_length byte.
const optionalFixedSize = 3

// bodySize is the TS packet payload capacity, used to gate
// fast-mode emission.
const bodySize = 184

// Mode selects between immediate (fast) and buffered (normal)
// re-packetization.
type Mode int

const (
	// ModeNormal buffers a full PES packet before remuxing it to TS.
	ModeNormal Mode = iota
	// ModeFast emits TS packets as soon as at least one full body's
	// worth of bytes is available, trading PES-boundary fidelity for
	// lower latency.
	ModeFast
)

// streamIDsWithoutOptionalHeader lists PES stream_id values that never
// carry the optional header (PTS/DTS, etc.), per ISO/IEC 13818-1
// Table 2-21.
var streamIDsWithoutOptionalHeader = map[byte]bool{
	0xBC: true, // program_stream_map
	0xBE: true, // padding_stream
	0xBF: true, // private_stream_2
	0xF0: true, // ECM
	0xF1: true, // EMM
	0xF2: true, // DSMCC_stream
	0xF8: true, // ITU-T Rec. H.222.1 type E
	0xFF: true, // program_stream_directory
}

// Header describes the parsed fields of a PES packet's start, handed
// to OnPES before the header is rebuilt, allowing a caller to rewrite
// PTS/DTS or the key flag.
type Header struct {
	StreamID byte
	Key      bool // random access point, from the TS RAI flag
	PTS, DTS uint64
	PCR      uint64 // tscore.TimestampNone if absent
}

// Assembler reassembles one PID's PES stream from TS packets and
// re-packetizes it back to TS, invoking OnTS for every output packet.
type Assembler struct {
	PID  uint16
	Mode Mode

	// OnPES is called once per PES packet, after its header has been
	// parsed but before output packetization begins, so the caller may
	// mutate the header in place.
	OnPES func(h *Header)
	// OnTS receives each generated 188-byte TS packet. The slice is
	// only valid for the duration of the call.
	OnTS func(pkt []byte)

	buf           []byte
	bufRead       int
	iCC           byte
	iCCValid      bool
	oCC           byte
	expectSize    int
	hdr           Header
	optHdrDataLen int
	fast          bool

	Truncated int // CC-discontinuity-triggered flushes
	Dropped   int // packets dropped for want of a declared length
}

// NewAssembler returns a reassembler for pid.
func NewAssembler(pid uint16) *Assembler {
	return &Assembler{PID: pid, oCC: 0x0F, buf: make([]byte, 0, MaxBuffer)}
}

// Mux feeds one incoming TS packet belonging to PID into the
// reassembler.
func (a *Assembler) Mux(ts tscore.Packet) {
	payload := ts.Payload()
	if payload == nil {
		return
	}

	cc := ts.CC()
	ccFail := false
	if a.iCCValid && a.expectSize != 0 && cc != (a.iCC+1)&0x0F {
		ccFail = true
		a.Truncated++
	}
	a.iCC = cc
	a.iCCValid = true

	isStart := ts.PUSI() && isPESStart(payload)
	hasData := len(a.buf) > 0

	if (isStart && hasData) || ccFail {
		a.demux()
	}
	if ccFail {
		// Skip one outgoing CC on top of the per-packet increment so
		// downstream observes the same loss the input carried.
		a.oCC = (a.oCC + 1) & 0x0F
	}

	if isStart {
		a.buf = a.buf[:0]
		a.bufRead = 0
		a.hdr = Header{PCR: tscore.TimestampNone, PTS: tscore.TimestampNone, DTS: tscore.TimestampNone}

		if !a.parseHeader(payload) {
			a.expectSize = 0
			return
		}
		if pcr, ok := ts.PCR(); ok {
			a.hdr.PCR = pcr
		}
		a.fast = a.Mode == ModeFast

		optLen := a.headerLen()
		if a.expectSize <= optLen {
			// Declared length leaves no room for payload: unbounded
			// (common for video streams declaring length 0).
			a.expectSize = MaxBuffer
		} else {
			a.expectSize -= optLen
		}

		totalHeaderLen := basicHeaderSize + optLen
		if totalHeaderLen > len(payload) {
			totalHeaderLen = len(payload)
		}
		payload = payload[totalHeaderLen:]
	}

	if len(payload) == 0 {
		return
	}
	a.buf = append(a.buf, payload...)

	switch {
	case a.expectSize == 0:
		a.Dropped++
	case len(a.buf) == a.expectSize:
		a.demux()
	case a.fast:
		a.demux()
	}
}

// headerLen returns the optional-header bytes parsed above the basic
// 6-byte header for the currently buffered PES packet: 0 for stream
// IDs without an optional header, otherwise optionalFixedSize plus
// the declared header_data_length. The pes_packet_length field this
// is subtracted from already excludes the basic header by
// definition (ISO/IEC 13818-1), so callers slicing raw TS payload
// bytes must add basicHeaderSize back in themselves.
func (a *Assembler) headerLen() int {
	if streamIDsWithoutOptionalHeader[a.hdr.StreamID] {
		return 0
	}
	return optionalFixedSize + a.optHdrDataLen
}

func isPESStart(payload []byte) bool {
	return len(payload) >= 3 && payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x01
}

// parseHeader parses the PES basic header plus, where present, the
// optional header's PTS/DTS fields. It returns false if payload is too
// short to contain a valid basic header.
func (a *Assembler) parseHeader(payload []byte) bool {
	if len(payload) < basicHeaderSize {
		return false
	}
	a.hdr.StreamID = payload[3]
	a.expectSize = int(payload[4])<<8 | int(payload[5])

	if streamIDsWithoutOptionalHeader[a.hdr.StreamID] {
		a.optHdrDataLen = 0
		return true
	}
	if len(payload) < basicHeaderSize+optionalFixedSize {
		return false
	}

	flags2 := payload[basicHeaderSize+1]
	hdrDataLen := int(payload[basicHeaderSize+2])
	a.optHdrDataLen = hdrDataLen

	ptsDtsFlags := (flags2 >> 6) & 0x03
	off := basicHeaderSize + optionalFixedSize
	if ptsDtsFlags == 0x02 || ptsDtsFlags == 0x03 {
		if off+5 > len(payload) {
			return true
		}
		if v, ok := tscore.DecodeTimestamp33(payload[off : off+5]); ok {
			a.hdr.PTS = v
		}
		off += 5
	}
	if ptsDtsFlags == 0x03 {
		if off+5 > len(payload) {
			return true
		}
		if v, ok := tscore.DecodeTimestamp33(payload[off : off+5]); ok {
			a.hdr.DTS = v
		}
	}
	return true
}

// demux re-packetizes the buffered PES payload into TS packets and
// resets buffering state for the next PES packet.
func (a *Assembler) demux() {
	if a.OnPES != nil {
		a.OnPES(&a.hdr)
	}

	for a.bufRead < len(a.buf) {
		remain := len(a.buf) - a.bufRead
		if a.fast && remain < bodySize && a.bufRead > 0 {
			break
		}

		pkt := make([]byte, tscore.PacketSize)
		pkt[0] = tscore.SyncByte
		isStart := a.bufRead == 0

		tscore.Packet(pkt).SetPID(a.PID)
		if isStart {
			tscore.Packet(pkt).SetPUSI(true)
		}
		a.oCC = (a.oCC + 1) & 0x0F
		pkt[3] |= a.oCC
		pkt[3] |= 0x10 // AFC: payload present (adjusted below if AF added)

		// afLen is the adaptation_field_length value that will be
		// written to pkt[4]: the number of AF bytes following that
		// length byte itself (ISO/IEC 13818-1). headOff is therefore
		// 4 (TS header) + 1 (length byte) + afLen whenever an AF is
		// present, matching tscore.Packet.PayloadOffset.
		afLen := 0
		hasAF := false
		if isStart {
			if a.hdr.Key {
				pkt[5] |= 0x40
				afLen = 1
				hasAF = true
			}
			if a.hdr.PCR != tscore.TimestampNone {
				pkt[5] |= 0x10
				tscore.EncodePCR(a.hdr.PCR, pkt[6:12])
				afLen = 7
				hasAF = true
			}
		}

		headOff := 4
		if hasAF {
			headOff = 5 + afLen
		}

		var pesHeader []byte
		pesHeaderLen := 0
		if isStart {
			pesHeader = a.buildPESHeader()
			pesHeaderLen = len(pesHeader)
		}

		space := tscore.PacketSize - headOff - pesHeaderLen
		if space > remain {
			stuffing := space - remain
			if !hasAF {
				// Dummy AF carrying only a zeroed flags byte, used
				// purely to make room for stuffing.
				pkt[5] = 0
				afLen = 1
				hasAF = true
				headOff = 5 + afLen
				space = tscore.PacketSize - headOff - pesHeaderLen
				stuffing = space - remain
			}
			stuffStart := 5 + afLen
			afLen += stuffing
			headOff = 5 + afLen
			space = tscore.PacketSize - headOff - pesHeaderLen
			for i := 0; i < stuffing; i++ {
				pkt[stuffStart+i] = 0xFF
			}
		}

		if hasAF {
			pkt[3] |= 0x20
			pkt[4] = byte(afLen)
		} else {
			pkt[3] &^= 0x20
		}

		n := copy(pkt[headOff:], pesHeader)
		payloadOff := headOff + n
		toCopy := space
		if toCopy > remain {
			toCopy = remain
		}
		copy(pkt[payloadOff:], a.buf[a.bufRead:a.bufRead+toCopy])
		a.bufRead += toCopy

		if a.OnTS != nil {
			a.OnTS(pkt)
		}
	}

	if !a.fast && len(a.buf) != a.expectSize && a.expectSize != MaxBuffer {
		corelog.Warningf("pes", "pid %d: PES packet size mismatch: got %d, expected %d", a.PID, len(a.buf), a.expectSize)
	}

	a.expectSize = 0
	a.buf = a.buf[:0]
	a.bufRead = 0
}

// buildPESHeader renders the basic + optional PES header bytes for
// the packet currently being demuxed.
func (a *Assembler) buildPESHeader() []byte {
	var ptsDtsFlags byte
	hdrDataLen := 0
	if a.hdr.PTS != tscore.TimestampNone && a.hdr.DTS != tscore.TimestampNone {
		ptsDtsFlags = 0x03
		hdrDataLen = 10
	} else if a.hdr.PTS != tscore.TimestampNone {
		ptsDtsFlags = 0x02
		hdrDataLen = 5
	}

	declaredLen := 0
	if a.expectSize != MaxBuffer {
		declaredLen = optionalFixedSize + hdrDataLen + a.expectSize
		if declaredLen > 0xFFFF {
			declaredLen = 0
		}
	}

	out := make([]byte, basicHeaderSize+optionalFixedSize+hdrDataLen)
	out[0], out[1], out[2] = 0x00, 0x00, 0x01
	out[3] = a.hdr.StreamID
	out[4] = byte(declaredLen >> 8)
	out[5] = byte(declaredLen)
	out[6] = 0x80 // marker bits
	out[7] = ptsDtsFlags << 6
	out[8] = byte(hdrDataLen)

	off := 9
	if ptsDtsFlags == 0x02 {
		tscore.EncodeTimestamp33(0x2, a.hdr.PTS, out[off:off+5])
	} else if ptsDtsFlags == 0x03 {
		tscore.EncodeTimestamp33(0x3, a.hdr.PTS, out[off:off+5])
		tscore.EncodeTimestamp33(0x1, a.hdr.DTS, out[off+5:off+10])
	}
	return out
}
