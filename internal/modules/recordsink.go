package modules

import (
	"fmt"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/recorder"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
)

const logTagRecordSink = "sink.record"

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "sink.record",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &RecordSink{} },
	})
}

// RecordSink captures every packet reaching it to a compressed on-disk
// file via internal/recorder, for later analysis of a tapped point in
// the graph.
type RecordSink struct {
	streamgraph.Base
	rec *recorder.Recorder
}

// Init reads the required "dir" option and the optional "name" (file
// name stem, default "capture").
func (m *RecordSink) Init(h scripthost.Host) error {
	dir, ok := h.OptionStr("dir")
	if !ok || dir == "" {
		return fmt.Errorf("sink.record: missing required option \"dir\"")
	}
	name, ok := h.OptionStr("name")
	if !ok || name == "" {
		name = "capture"
	}

	rec, err := recorder.Open(dir, name)
	if err != nil {
		return fmt.Errorf("sink.record: %w", err)
	}
	m.rec = rec
	m.Base = streamgraph.NewBase("sink.record:"+name, streamgraph.KindSink)
	m.Base.Bind(m)
	return nil
}

// Node returns this instance's graph participation.
func (m *RecordSink) Node() streamgraph.Node { return m }

// Send appends pkt to the capture.
func (m *RecordSink) Send(pkt []byte) { m.rec.Tap(pkt) }

// Destroy flushes and closes the capture file.
func (m *RecordSink) Destroy() {
	if err := m.rec.Close(); err != nil {
		corelog.Warningf(logTagRecordSink, "%s: %v", m.Name(), err)
	}
}
