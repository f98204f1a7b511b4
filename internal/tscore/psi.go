package tscore

// PATEntry is one program_number -> PMT PID mapping from a Program
// Association Table, excluding the network_PID (program_number 0)
// entry.
type PATEntry struct {
	ProgramNumber uint16
	PID           uint16
}

// ScanPAT parses a single-section PAT payload (PUSI packet's payload,
// pointer_field included) into its program entries.
func ScanPAT(payload []byte) ([]PATEntry, bool) {
	if len(payload) < 1 {
		return nil, false
	}
	ptr := int(payload[0])
	if 1+ptr >= len(payload) {
		return nil, false
	}
	sec := payload[1+ptr:]
	if len(sec) < 8 || sec[0] != 0x00 {
		return nil, false
	}
	sectionLen := int(sec[1]&0x0F)<<8 | int(sec[2])
	if sectionLen < 9 || 3+sectionLen > len(sec) {
		return nil, false
	}
	end := 3 + sectionLen

	var entries []PATEntry
	for i := 8; i+4 <= end-4; i += 4 {
		progNum := uint16(sec[i])<<8 | uint16(sec[i+1])
		pid := (uint16(sec[i+2]&0x1F) << 8) | uint16(sec[i+3])
		if progNum != 0 {
			entries = append(entries, PATEntry{ProgramNumber: progNum, PID: pid})
		}
	}
	return entries, true
}

// PMTStream is one elementary stream entry from a Program Map Table.
type PMTStream struct {
	StreamType byte
	PID        uint16
}

// PMT is a parsed Program Map Table section.
type PMT struct {
	PCRPID  uint16
	Streams []PMTStream
}

// ScanPMT parses a single-section PMT payload.
func ScanPMT(payload []byte) (PMT, bool) {
	var out PMT
	if len(payload) < 1 {
		return out, false
	}
	ptr := int(payload[0])
	if 1+ptr >= len(payload) {
		return out, false
	}
	sec := payload[1+ptr:]
	if len(sec) < 12 || sec[0] != 0x02 {
		return out, false
	}
	sectionLen := int(sec[1]&0x0F)<<8 | int(sec[2])
	if sectionLen < 13 || 3+sectionLen > len(sec) {
		return out, false
	}
	end := 3 + sectionLen

	out.PCRPID = (uint16(sec[8]&0x1F) << 8) | uint16(sec[9])
	progInfoLen := int(sec[10]&0x0F)<<8 | int(sec[11])
	i := 12 + progInfoLen
	if i > end-4 {
		return out, true
	}
	for i+5 <= end-4 {
		stype := sec[i]
		pid := (uint16(sec[i+1]&0x1F) << 8) | uint16(sec[i+2])
		esInfoLen := int(sec[i+3]&0x0F)<<8 | int(sec[i+4])
		out.Streams = append(out.Streams, PMTStream{StreamType: stype, PID: pid})
		i += 5 + esInfoLen
	}
	return out, true
}

// FindPID returns the elementary stream PID in pmt whose stream_type
// matches streamType, or false if none does.
func (pmt PMT) FindPID(streamType byte) (uint16, bool) {
	for _, s := range pmt.Streams {
		if s.StreamType == streamType {
			return s.PID, true
		}
	}
	return 0, false
}

// StreamTypeT2MI is the stream_type value DVB uses for a T2-MI
// encapsulated elementary stream (ETSI TS 102 773).
const StreamTypeT2MI = 0x06
