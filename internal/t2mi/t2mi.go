// Package t2mi implements T2-MI (DVB-T2 Modulator Interface)
// de-encapsulation: extracting the inner Transport Stream carried as
// Baseband Frame payload inside an outer TS's T2-MI elementary
// stream.
package t2mi

import (
	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/tscore"
)

// PLPAuto selects the first PLP encountered and latches onto it for
// the lifetime of the decapsulator.
const PLPAuto = 0x100

// T2-MI packet types carrying baseband frame data (ETSI TS 102 773).
const (
	packetTypeBBFrame        = 0x00
	packetTypeBBFrameExtended = 0x01
)

// Decapsulator extracts an inner TS from T2-MI packets found in a
// single outer-TS elementary stream.
type Decapsulator struct {
	Name string

	// PayloadPNR/PayloadPID force the outer ES carrying T2-MI; if
	// PayloadPID is zero, the decapsulator resolves it from the PAT/PMT
	// of the outer stream instead (PNR selects the program, PID
	// overrides the search entirely).
	PayloadPNR uint16
	PayloadPID uint16

	// PLP selects which T2-MI Physical Layer Pipe to decapsulate.
	// PLPAuto (the default) latches onto the first PLP ID seen and
	// ignores all others thereafter.
	PLP uint16

	// OnJoin/OnLeave propagate PID subscriptions upstream: called when the
	// decapsulator starts or stops needing ts on a given outer PID.
	OnJoin  func(pid uint16)
	OnLeave func(pid uint16)

	// OnTS receives each inner TS packet extracted from the baseband
	// frame payload.
	OnTS func(pkt []byte)

	payloadPID    uint16
	payloadPIDSet bool
	plpLatched    bool
	latchedPLP    uint16

	pmtPID    uint16
	pmtPIDSet bool

	cc      byte
	ccValid bool
	synced  bool
	buf     []byte

	// CCErrors counts continuity gaps observed on the outer payload
	// PID; each one discards the partial T2-MI reassembly.
	CCErrors int
}

// New returns a Decapsulator with PLP defaulting to PLPAuto.
func New(name string) *Decapsulator {
	return &Decapsulator{Name: name, PLP: PLPAuto}
}

// Decap feeds one outer TS packet to the decapsulator. Only packets
// on the resolved payload PID are interpreted as T2-MI; everything
// else is used only to resolve that PID via PAT/PMT when it has not
// been forced by PayloadPID.
func (d *Decapsulator) Decap(ts tscore.Packet) {
	if err := ts.Validate(); err != nil {
		return
	}

	if d.PayloadPID != 0 {
		d.resolvePID(d.PayloadPID)
	} else if !d.payloadPIDSet {
		d.scanForPayload(ts)
	}

	if !d.payloadPIDSet || ts.PID() != d.payloadPID {
		return
	}

	payload := ts.Payload()
	if payload == nil {
		return
	}

	cc := ts.CC()
	if d.ccValid && cc != (d.cc+1)&0x0F {
		// A dropped outer packet leaves a hole the reassembly cannot
		// see; discard the partial frame and wait for the next start.
		d.CCErrors++
		d.buf = d.buf[:0]
		d.synced = false
	}
	d.cc = cc
	d.ccValid = true

	if ts.PUSI() {
		d.buf = d.buf[:0]
		d.synced = true
	}
	if !d.synced {
		return
	}
	d.buf = append(d.buf, payload...)
	d.drainPackets()
}

func (d *Decapsulator) resolvePID(pid uint16) {
	if d.payloadPIDSet && d.payloadPID == pid {
		return
	}
	if d.payloadPIDSet && d.OnLeave != nil {
		d.OnLeave(d.payloadPID)
	}
	d.payloadPID = pid
	d.payloadPIDSet = true
	if d.OnJoin != nil {
		d.OnJoin(pid)
	}
}

// scanForPayload watches PAT (PID 0) and, once the target program's
// PMT PID is known, the PMT itself, to locate the T2-MI elementary
// stream for PayloadPNR (or the first T2-MI stream_type found, if no
// PNR was specified).
func (d *Decapsulator) scanForPayload(ts tscore.Packet) {
	switch {
	case ts.PID() == 0:
		if !ts.PUSI() {
			return
		}
		entries, ok := tscore.ScanPAT(ts.Payload())
		if !ok {
			return
		}
		for _, e := range entries {
			if d.PayloadPNR == 0 || e.ProgramNumber == d.PayloadPNR {
				if !d.pmtPIDSet || d.pmtPID != e.PID {
					d.pmtPID = e.PID
					d.pmtPIDSet = true
					if d.OnJoin != nil {
						d.OnJoin(e.PID)
					}
				}
				return
			}
		}

	case d.pmtPIDSet && ts.PID() == d.pmtPID:
		if !ts.PUSI() {
			return
		}
		pmt, ok := tscore.ScanPMT(ts.Payload())
		if !ok {
			return
		}
		if pid, ok := pmt.FindPID(tscore.StreamTypeT2MI); ok {
			d.resolvePID(pid)
		}
	}
}

// drainPackets extracts complete T2-MI packets from buf and, for
// baseband-frame packet types matching the selected PLP, emits the
// inner TS packets found in their payload.
func (d *Decapsulator) drainPackets() {
	for {
		if len(d.buf) < 6 {
			return
		}
		packetType := d.buf[0]
		payloadLenBits := int(d.buf[4])<<8 | int(d.buf[5])
		payloadLen := (payloadLenBits + 7) / 8
		const headerLen = 6
		const crcLen = 4
		total := headerLen + payloadLen + crcLen
		if len(d.buf) < total {
			return
		}

		if packetType == packetTypeBBFrame || packetType == packetTypeBBFrameExtended {
			d.handleBBFrame(d.buf[headerLen : headerLen+payloadLen])
		}

		d.buf = d.buf[total:]
	}
}

// handleBBFrame parses a baseband frame payload: a 2-byte PLP
// identifier header followed by the raw inner TS bytes (already
// 188-byte aligned in this simplified framing).
func (d *Decapsulator) handleBBFrame(payload []byte) {
	if len(payload) < 2 {
		return
	}
	plp := uint16(payload[1])
	payload = payload[2:]

	if d.PLP == PLPAuto {
		if !d.plpLatched {
			d.plpLatched = true
			d.latchedPLP = plp
			corelog.Infof("t2mi", "%s: latched onto PLP %d", d.Name, plp)
		}
		if plp != d.latchedPLP {
			return
		}
	} else if plp != d.PLP {
		return
	}

	for len(payload) >= tscore.PacketSize {
		pkt := payload[:tscore.PacketSize]
		if pkt[0] == tscore.SyncByte && d.OnTS != nil {
			d.OnTS(pkt)
		}
		payload = payload[tscore.PacketSize:]
	}
}
