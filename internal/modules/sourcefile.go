package modules

import (
	"fmt"
	"io"
	"os"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/tscore"
	"github.com/astrasm/astra-go/internal/wake"
	"github.com/astrasm/astra-go/internal/worker"
)

const logTagFileSource = "source.file"

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "source.file",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &FileSource{} },
	})
}

// readBatch is how many packets one file read delivers to the graph
// per job, bounding how much work one deferred job performs.
const readBatch = 64

// FileSource reads a flat file of consecutive 188-byte TS packets and
// pumps them into the graph. Intended for recorded-stream playback
// and tests; a live capture card or network reader would implement
// the same Pumped contract.
type FileSource struct {
	streamgraph.Base

	path string
	loop bool

	file   *os.File
	stopCh chan struct{}
}

// Init reads the "path" (required) and "loop" (optional, default
// false) options.
func (f *FileSource) Init(h scripthost.Host) error {
	path, ok := h.OptionStr("path")
	if !ok || path == "" {
		return fmt.Errorf("source.file: missing required option \"path\"")
	}
	f.path = path
	f.loop, _ = h.OptionBool("loop")
	f.Base = streamgraph.NewBase("source.file:"+path, streamgraph.KindSource)
	f.Base.Bind(f)
	return nil
}

// Node returns this instance's graph participation.
func (f *FileSource) Node() streamgraph.Node { return f }

// Send fans pkt out to every attached child, the same behavior as a
// plain streamgraph.Source; present because FileSource embeds Base
// directly instead of Source so Bind can target the *FileSource
// itself rather than an intermediate Source value.
func (f *FileSource) Send(pkt []byte) { f.SendToChildren(pkt) }

// Pump opens the file and starts a background reader that delivers
// packets through jobs, waking the main loop after each batch.
func (f *FileSource) Pump(jobs *jobqueue.Queue, wk *wake.Pipe, sup *worker.Supervisor) {
	file, err := os.Open(f.path)
	if err != nil {
		corelog.Errorf(logTagFileSource, "open %s: %v", f.path, err)
		return
	}
	f.file = file
	f.stopCh = make(chan struct{})

	sup.Start(f, func(any) any {
		f.readLoop(jobs, wk)
		return nil
	}, func(any, any) {
		f.file.Close()
	})
}

// Stop signals the read loop to exit at the next batch boundary.
func (f *FileSource) Stop() {
	if f.stopCh != nil {
		close(f.stopCh)
	}
}

func (f *FileSource) readLoop(jobs *jobqueue.Queue, wk *wake.Pipe) {
	buf := make([]byte, tscore.PacketSize*readBatch)
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		n, err := io.ReadFull(f.file, buf)
		if n > 0 {
			packets := make([][]byte, 0, n/tscore.PacketSize)
			for off := 0; off+tscore.PacketSize <= n; off += tscore.PacketSize {
				pkt := make([]byte, tscore.PacketSize)
				copy(pkt, buf[off:off+tscore.PacketSize])
				packets = append(packets, pkt)
			}
			node := f
			jobs.Push(f, func() {
				for _, pkt := range packets {
					node.Send(pkt)
				}
			})
			wk.Wake()
		}

		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if f.loop {
					if _, seekErr := f.file.Seek(0, io.SeekStart); seekErr == nil {
						continue
					}
				}
				return
			}
			corelog.Errorf(logTagFileSource, "read %s: %v", f.path, err)
			return
		}
	}
}

// Destroy is a no-op beyond what Pump's onClose already does; present
// to satisfy scripthost.Instance.
func (f *FileSource) Destroy() {}
