// Package syncbuf implements the PCR-paced rate-shaping ring buffer
// that sits between ingestion and output.
package syncbuf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/astrasm/astra-go/internal/clock"
	"github.com/astrasm/astra-go/internal/tscore"
)

// SyncInterval is the drain-callback cadence.
const SyncInterval = 5 * time.Millisecond

// Defaults for the "enough,low,max_mib" option string: "10,5,8".
const (
	defaultEnoughBlocks = 10
	defaultLowBlocks    = 5
	defaultMaxMiB       = 8
)

// blockPackets is how many TS packets make up one accounting "block",
// the unit enough/low/max are expressed in.
const blockPackets = 1

// State is the buffer's fill state, reported via Stat.
type State int

const (
	StateEmpty State = iota
	StateFilling
	StateNormal
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateNormal:
		return "normal"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Stat reports the buffer's current occupancy and configuration.
type Stat struct {
	EnoughBlocks int
	LowBlocks    int
	MaxSize      int
	Bitrate      int64
	Size         int
	Filled       int
	Want         int
	NumBlocks    int
	State        State
}

// Options holds the parsed sync-buffer option string.
type Options struct {
	EnoughBlocks int
	LowBlocks    int
	MaxMiB       int
}

// DefaultOptions returns the "10,5,8" default.
func DefaultOptions() Options {
	return Options{EnoughBlocks: defaultEnoughBlocks, LowBlocks: defaultLowBlocks, MaxMiB: defaultMaxMiB}
}

// ParseOptions parses the "<enough>,<low>,<max_mib>" option string.
// Any field may be left blank to take its default, e.g. ",,16" or
// "80" (only enough given) or "40,20,16".
func ParseOptions(s string) (Options, error) {
	opts := DefaultOptions()
	if strings.TrimSpace(s) == "" {
		return opts, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return opts, fmt.Errorf("syncbuf: too many fields in option string %q", s)
	}

	parse := func(field string, dst *int) error {
		field = strings.TrimSpace(field)
		if field == "" {
			return nil
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("syncbuf: invalid field %q: %w", field, err)
		}
		*dst = v
		return nil
	}

	if len(parts) > 0 {
		if err := parse(parts[0], &opts.EnoughBlocks); err != nil {
			return opts, err
		}
	}
	if len(parts) > 1 {
		if err := parse(parts[1], &opts.LowBlocks); err != nil {
			return opts, err
		}
	}
	if len(parts) > 2 {
		if err := parse(parts[2], &opts.MaxMiB); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// bufferSeconds is how much stream time the pacing window covers: the
// byte-level thresholds are carved out of bitrate/8 * bufferSeconds.
const bufferSeconds = 1

// fillLevel is the byte-threshold pacing state: output is suspended in
// fillLow, paced at the configured bitrate in fillNormal, and
// burst-drained back down to the norm threshold in fillHigh.
type fillLevel int

const (
	fillLow fillLevel = iota
	fillNormal
	fillHigh
)

// Buffer is a PCR-driven pacing ring buffer of TS packets.
type Buffer struct {
	opts Options

	blocks [][]byte
	want   int

	// PCR-derived bitrate estimation: bytes seen since the previous
	// PCR carrier, and that carrier's value.
	lastPCR      uint64
	havePCR      bool
	bytesSincePCR int
	explicitRate bool

	lastTick   int64
	pending    float64 // bytes owed to the output since lastTick
	bitrateBPS float64
	sizeBytes  int // pacing window: bitrate/8 * bufferSeconds, capped at MaxSize
	level      fillLevel

	// started latches true the first time the buffer reaches
	// EnoughBlocks, and is cleared by Reset. It distinguishes the
	// initial warm-up (Filling) from a later dip to/below LowBlocks
	// (Draining): without it, any fill level below EnoughBlocks would
	// read back as Filling and DRAINING could never be observed once
	// the buffer had already started.
	started bool

	// OnReady is invoked whenever the buffer transitions into Normal
	// state from Empty/Filling (i.e. once "enough" blocks have
	// accumulated).
	OnReady func()
	// OnTS receives each packet released by Loop.
	OnTS func(pkt []byte)

	now func() int64
}

// New returns a Buffer configured by opts.
func New(opts Options) *Buffer {
	return &Buffer{opts: opts, now: clock.NowUS}
}

// normBytes is the fill level at which output starts (25% of the
// pacing window); highBytes (75%) is where the burst-drain kicks in.
func (b *Buffer) normBytes() int { return b.sizeBytes / 4 }
func (b *Buffer) highBytes() int { return b.sizeBytes * 3 / 4 }

func (b *Buffer) fillBytes() int { return len(b.blocks) * tscore.PacketSize }

// resize recomputes the pacing window from the current bitrate,
// bounded by the configured maximum size.
func (b *Buffer) resize() {
	size := int(b.bitrateBPS / 8 * bufferSeconds)
	if max := b.opts.MaxMiB * 1024 * 1024; size > max {
		size = max
	}
	b.sizeBytes = size
}

// Push appends packets to the buffer. If the append would exceed the
// configured maximum size, the whole buffer is flushed, pacing
// returns to the suspended low state, and Push reports false; the
// writer continues against an empty buffer.
func (b *Buffer) Push(packets [][]byte) bool {
	maxBlocks := b.opts.MaxMiB * 1024 * 1024 / tscore.PacketSize
	if len(b.blocks)+len(packets) > maxBlocks {
		b.blocks = nil
		b.pending = 0
		b.level = fillLow
		b.started = false
		return false
	}

	wasBelowEnough := len(b.blocks) < b.opts.EnoughBlocks
	b.blocks = append(b.blocks, packets...)

	for _, pkt := range packets {
		b.bytesSincePCR += tscore.PacketSize
		if pcr, ok := tscore.Packet(pkt).PCR(); ok {
			b.observePCR(pcr)
		}
	}

	if b.level == fillLow && b.fillBytes() >= b.normBytes() {
		b.level = fillNormal
	}

	if len(b.blocks) >= b.opts.EnoughBlocks {
		b.started = true
	}
	if wasBelowEnough && len(b.blocks) >= b.opts.EnoughBlocks && b.OnReady != nil {
		b.OnReady()
	}
	return true
}

// observePCR folds one PCR carrier into the bitrate estimate. An
// explicit SetBitrate wins over estimation.
func (b *Buffer) observePCR(pcr uint64) {
	if b.havePCR && !b.explicitRate {
		delta := (pcr + tscore.PCRModulus - b.lastPCR) % tscore.PCRModulus
		if delta > 0 {
			seconds := float64(delta) / 27e6
			b.bitrateBPS = float64(b.bytesSincePCR) * 8 / seconds
			b.resize()
		}
	}
	b.lastPCR = pcr
	b.havePCR = true
	b.bytesSincePCR = 0
}

// Reset discards all buffered packets and pacing state.
func (b *Buffer) Reset() {
	b.blocks = nil
	b.havePCR = false
	b.bytesSincePCR = 0
	b.pending = 0
	b.lastTick = 0
	b.level = fillLow
	b.started = false
}

// Query returns the current Stat snapshot.
func (b *Buffer) Query() Stat {
	return Stat{
		EnoughBlocks: b.opts.EnoughBlocks,
		LowBlocks:    b.opts.LowBlocks,
		MaxSize:      b.opts.MaxMiB * 1024 * 1024,
		Bitrate:      int64(b.bitrateBPS),
		Size:         len(b.blocks) * tscore.PacketSize,
		Filled:       len(b.blocks),
		Want:         b.want,
		NumBlocks:    len(b.blocks),
		State:        b.state(),
	}
}

func (b *Buffer) state() State {
	switch {
	case len(b.blocks) == 0:
		return StateEmpty
	case b.started && len(b.blocks) <= b.opts.LowBlocks:
		return StateDraining
	case !b.started && len(b.blocks) < b.opts.EnoughBlocks:
		return StateFilling
	default:
		return StateNormal
	}
}

// Loop is the timer-driven drain callback (SyncInterval cadence). It
// accrues elapsed*rate bytes of output credit and releases whole
// packets against it, gated by the fill thresholds: below norm the
// output stays suspended, at or above high the credit is replaced by
// fill-norm so the backlog burst-drains back down to norm, and an
// emptied buffer suspends output until the fill recovers to norm.
func (b *Buffer) Loop() {
	now := b.now()
	if b.lastTick == 0 {
		b.lastTick = now
		return
	}
	elapsedUS := now - b.lastTick
	b.lastTick = now

	if b.bitrateBPS <= 0 {
		return
	}
	if len(b.blocks) == 0 {
		if b.level != fillLow {
			b.level = fillLow
			b.pending = 0
		}
		return
	}

	fill := b.fillBytes()
	if b.level == fillLow {
		if fill < b.normBytes() {
			b.pending = 0
			return
		}
		b.level = fillNormal
	}

	b.pending += float64(elapsedUS) * b.bitrateBPS / 8 / 1e6

	switch b.level {
	case fillNormal:
		if fill >= b.highBytes() {
			b.level = fillHigh
			b.pending = float64(fill - b.normBytes())
		}
	case fillHigh:
		if fill <= b.highBytes() {
			b.level = fillNormal
		}
	}

	n := int(b.pending) / tscore.PacketSize
	if n > len(b.blocks) {
		n = len(b.blocks)
	}
	b.pending -= float64(n * tscore.PacketSize)

	for i := 0; i < n; i++ {
		if b.OnTS != nil {
			b.OnTS(b.blocks[i])
		}
	}
	b.blocks = b.blocks[n:]

	if len(b.blocks) == 0 {
		b.level = fillLow
		b.pending = 0
	}
}

// SetBitrate overrides the pacing bitrate directly (bits per second),
// bypassing PCR-derived estimation; used when the caller already
// knows the stream's nominal rate.
func (b *Buffer) SetBitrate(bps int64) {
	b.bitrateBPS = float64(bps)
	b.explicitRate = true
	b.resize()
}
