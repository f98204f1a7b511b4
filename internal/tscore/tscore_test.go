package tscore

import (
	"math/rand"
	"testing"
)

func TestPIDGetSetRoundTrip(t *testing.T) {
	pkt := make(Packet, PacketSize)
	for _, pid := range []uint16{0, 1, 0x100, 0x1FFE, NullPID} {
		pkt.SetPID(pid)
		if got := pkt.PID(); got != pid {
			t.Fatalf("PID() = %#x after SetPID(%#x)", got, pid)
		}
	}
}

func TestPUSIRoundTrip(t *testing.T) {
	pkt := make(Packet, PacketSize)
	pkt.SetPUSI(true)
	if !pkt.PUSI() {
		t.Fatal("PUSI() false after SetPUSI(true)")
	}
	pkt.SetPUSI(false)
	if pkt.PUSI() {
		t.Fatal("PUSI() true after SetPUSI(false)")
	}
}

func TestCCRoundTrip(t *testing.T) {
	pkt := make(Packet, PacketSize)
	for cc := byte(0); cc < 16; cc++ {
		pkt.SetCC(cc)
		if got := pkt.CC(); got != cc {
			t.Fatalf("CC() = %d after SetCC(%d)", got, cc)
		}
	}
}

func TestValidateRejectsShortAndBadSync(t *testing.T) {
	if err := Packet(make([]byte, 10)).Validate(); err != ErrShortPacket {
		t.Fatalf("Validate() on short packet = %v, want ErrShortPacket", err)
	}
	pkt := make(Packet, PacketSize)
	pkt[0] = 0x00
	if err := pkt.Validate(); err != ErrBadSync {
		t.Fatalf("Validate() on bad sync = %v, want ErrBadSync", err)
	}
	pkt[0] = SyncByte
	if err := pkt.Validate(); err != nil {
		t.Fatalf("Validate() on good packet = %v, want nil", err)
	}
}

// TestPCRRoundTrip is property R1: encoding and decoding a 42-bit PCR
// (base, ext) yields the same pair for all base in [0, 2^33) and ext
// in [0, 300); exercised here over a representative sample since the
// full space is 2^33*300 values.
func TestPCRRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const modulus = uint64(1) << 33 * 300

	cases := []uint64{0, 299, 300, modulus - 1}
	for i := 0; i < 2000; i++ {
		base := rng.Uint64() % (1 << 33)
		ext := rng.Uint64() % 300
		cases = append(cases, base*300+ext)
	}

	for _, pcr := range cases {
		buf := make([]byte, 6)
		EncodePCR(pcr, buf)
		got, ok := DecodePCR(buf)
		if !ok {
			t.Fatalf("DecodePCR failed for pcr=%d", pcr)
		}
		if got != pcr {
			t.Fatalf("round-trip PCR mismatch: got %d, want %d", got, pcr)
		}
	}
}

func TestPacketPCRExtraction(t *testing.T) {
	pkt := make(Packet, PacketSize)
	pkt[0] = SyncByte
	pkt[3] = 0x20 // AFC: adaptation field only
	pkt[4] = 7    // AF length
	pkt[5] = 0x10 // PCR flag
	EncodePCR(123456789, pkt[6:12])

	pcr, ok := pkt.PCR()
	if !ok {
		t.Fatal("PCR() reported not present")
	}
	if pcr != 123456789 {
		t.Fatalf("PCR() = %d, want 123456789", pcr)
	}
}

func TestPacketPCRAbsentWithoutFlag(t *testing.T) {
	pkt := make(Packet, PacketSize)
	pkt[0] = SyncByte
	pkt[3] = 0x20
	pkt[4] = 7
	pkt[5] = 0x00 // PCR flag clear
	if _, ok := pkt.PCR(); ok {
		t.Fatal("PCR() reported present without the PCR flag set")
	}
}

// TestTimestamp33RoundTrip is property R2: packing and unpacking a
// 33-bit PTS/DTS into its 5-byte PES field is bijective over the
// full range, sampled here.
func TestTimestamp33RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cases := []uint64{0, 1, (1 << 33) - 1}
	for i := 0; i < 5000; i++ {
		cases = append(cases, rng.Uint64()%(1<<33))
	}

	for _, ts := range cases {
		buf := make([]byte, 5)
		EncodeTimestamp33(0x2, ts, buf)
		got, ok := DecodeTimestamp33(buf)
		if !ok {
			t.Fatalf("DecodeTimestamp33 failed for ts=%d", ts)
		}
		if got != ts {
			t.Fatalf("round-trip timestamp mismatch: got %d, want %d", got, ts)
		}
	}
}

func TestDecodeTimestamp33RejectsBadMarkerBits(t *testing.T) {
	buf := make([]byte, 5)
	EncodeTimestamp33(0x2, 12345, buf)
	buf[0] &^= 0x01 // clear a marker bit
	if _, ok := DecodeTimestamp33(buf); ok {
		t.Fatal("DecodeTimestamp33 accepted a field with a cleared marker bit")
	}
}

func TestPayloadOffsetWithAndWithoutAdaptationField(t *testing.T) {
	pkt := make(Packet, PacketSize)
	pkt[0] = SyncByte
	pkt[3] = 0x10 // payload only
	if off := pkt.PayloadOffset(); off != 4 {
		t.Fatalf("PayloadOffset() payload-only = %d, want 4", off)
	}

	pkt[3] = 0x30 // AF + payload
	pkt[4] = 10   // AF length
	if off := pkt.PayloadOffset(); off != 4+1+10 {
		t.Fatalf("PayloadOffset() with AF = %d, want %d", off, 4+1+10)
	}
}

func scanPATFixture(entries map[uint16]uint16) []byte {
	body := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	for prog, pid := range entries {
		body = append(body, byte(prog>>8), byte(prog), 0xE0|byte(pid>>8), byte(pid))
	}
	body = append(body, 0, 0, 0, 0) // CRC placeholder
	sectionLen := len(body) - 3
	body[1] = byte(sectionLen>>8) | 0x00
	body[2] = byte(sectionLen)
	return append([]byte{0x00}, body...) // pointer_field = 0
}

func TestScanPATFindsProgramEntries(t *testing.T) {
	payload := scanPATFixture(map[uint16]uint16{1: 0x1000, 2: 0x1001})
	entries, ok := ScanPAT(payload)
	if !ok {
		t.Fatal("ScanPAT failed on well-formed payload")
	}
	if len(entries) != 2 {
		t.Fatalf("ScanPAT found %d entries, want 2", len(entries))
	}
}

func TestScanPMTFindsT2MIStream(t *testing.T) {
	// table_id(0x02) section_length(..) program_number(2) ver/cni/sec(1)
	// last_sec(1) pcr_pid(2) program_info_len(2) [stream_type pid es_info_len]... crc(4)
	body := []byte{
		0x02,       // table_id
		0x00, 0x00, // section_length placeholder
		0x00, 0x01, // program_number
		0x00,       // version/current_next
		0x00,       // section_number
		0x00,       // last_section_number
		0xE1, 0x00, // PCR_PID = 0x100
		0x00, 0x00, // program_info_length = 0
		StreamTypeT2MI, 0xE2, 0x00, 0x00, 0x00, // stream_type, PID=0x200, ES info len=0
		0, 0, 0, 0, // CRC placeholder
	}
	sectionLen := len(body) - 3
	body[1] = byte(sectionLen >> 8)
	body[2] = byte(sectionLen)
	payload := append([]byte{0x00}, body...)

	pmt, ok := ScanPMT(payload)
	if !ok {
		t.Fatal("ScanPMT failed on well-formed payload")
	}
	if pmt.PCRPID != 0x100 {
		t.Fatalf("PCRPID = %#x, want 0x100", pmt.PCRPID)
	}
	pid, found := pmt.FindPID(StreamTypeT2MI)
	if !found || pid != 0x200 {
		t.Fatalf("FindPID(T2MI) = (%#x, %v), want (0x200, true)", pid, found)
	}
}
