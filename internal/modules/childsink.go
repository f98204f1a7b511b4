package modules

import (
	"fmt"
	"strings"

	"github.com/astrasm/astra-go/internal/child"
	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
	"github.com/astrasm/astra-go/internal/wake"
	"github.com/astrasm/astra-go/internal/worker"
)

const logTagChildSink = "exec"

func init() {
	scripthost.Default.Register(scripthost.Manifest{
		Name: "exec",
		Type: scripthost.Streaming,
		New:  func() scripthost.Instance { return &ChildSink{} },
	})
}

// ChildSink relays TS packets into a spawned child process's stdin and
// re-injects whatever the child writes back to stdout to its own
// children, e.g. an ffmpeg transcode in the loop.
type ChildSink struct {
	streamgraph.Base

	argv []string
	c    *child.Child
}

// Init reads the required "command" option, a space-separated argv
// (no shell interpretation, matching internal/child.Config.Command).
func (m *ChildSink) Init(h scripthost.Host) error {
	cmdStr, ok := h.OptionStr("command")
	if !ok || cmdStr == "" {
		return fmt.Errorf("exec: missing required option \"command\"")
	}
	m.argv = strings.Fields(cmdStr)
	m.Base = streamgraph.NewBase("exec:"+m.argv[0], streamgraph.KindPipe)
	m.Base.Bind(m)
	return nil
}

// Node returns this instance's graph participation.
func (m *ChildSink) Node() streamgraph.Node { return m }

// Pump spawns the child process, relaying its framed stdout packets
// back into the graph through the job queue, matching every other
// Pumped source's "jobs + wake, never a direct Send" contract.
func (m *ChildSink) Pump(jobs *jobqueue.Queue, wk *wake.Pipe, sup *worker.Supervisor) {
	cfg := child.Config{
		Name:    m.Name(),
		Command: m.argv,
		Stdin:   child.StreamConfig{Mode: child.ModeMPEGTS},
		Stdout: child.StreamConfig{
			Mode: child.ModeMPEGTS,
			OnMPEGTS: func(pkt []byte) {
				cp := make([]byte, len(pkt))
				copy(cp, pkt)
				jobs.Push(m, func() { m.SendToChildren(cp) })
				wk.Wake()
			},
		},
		Stderr: child.StreamConfig{
			Mode: child.ModeText,
			OnText: func(line string) {
				corelog.Infof(logTagChildSink, "%s: %s", m.Name(), line)
			},
		},
		OnClose: func(err error) {
			corelog.Infof(logTagChildSink, "%s: exited with status %d", m.Name(), child.ExitCode(err))
		},
	}

	c, err := child.Spawn(cfg)
	if err != nil {
		corelog.Errorf(logTagChildSink, "spawn %v: %v", m.argv, err)
		return
	}
	m.c = c
}

// Send writes pkt to the child's stdin.
func (m *ChildSink) Send(pkt []byte) {
	if m.c == nil {
		return
	}
	if _, err := m.c.Send(pkt); err != nil {
		corelog.Warningf(logTagChildSink, "%s: write: %v", m.Name(), err)
	}
}

// Destroy terminates the child process via its SIGTERM-then-SIGKILL
// ladder.
func (m *ChildSink) Destroy() {
	if m.c != nil {
		m.c.Close()
	}
}
