// Package child implements three-pipe child-process I/O with
// per-stream framing and a two-stage forced-termination ladder.
package child

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/tscore"
)

// Mode selects the framing applied to one stdio stream.
type Mode int

const (
	// ModeNone means the stream is not attached at all.
	ModeNone Mode = iota
	// ModeMPEGTS frames the stream as consecutive 188-byte TS packets.
	ModeMPEGTS
	// ModeText frames the stream as newline-delimited text lines.
	ModeText
	// ModeRaw passes bytes through unframed, in arbitrary-sized chunks.
	ModeRaw
)

// killWait is how long a polite termination is given to take effect
// before the process is force-killed, matching the ladder timing
// required for child-process shutdown.
const killWait = 1500 * time.Millisecond

// StreamConfig configures one stdio stream's framing and callback.
type StreamConfig struct {
	Mode Mode
	// OnMPEGTS receives one TS packet at a time (ModeMPEGTS).
	OnMPEGTS func(pkt []byte)
	// OnText receives one line at a time, without the trailing newline
	// (ModeText).
	OnText func(line string)
	// OnRaw receives arbitrary-sized chunks (ModeRaw).
	OnRaw func(p []byte)
}

// Config describes a child process to spawn.
type Config struct {
	Name    string
	Command []string // argv, not shell-interpreted
	Env     []string

	Stdin  StreamConfig
	Stdout StreamConfig
	Stderr StreamConfig

	// OnClose is invoked once the process has exited, with its error
	// (nil on a clean zero exit).
	OnClose func(err error)
}

// Child is a running child process.
type Child struct {
	cfg    Config
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	done   chan struct{}
}

// Spawn starts cfg.Command and begins relaying its stdio according to
// the configured per-stream framing. The returned Child is live until
// Close is called or the process exits on its own.
func Spawn(cfg Config) (*Child, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = cfg.Env

	c := &Child{cfg: cfg, cmd: cmd, cancel: cancel, done: make(chan struct{})}

	if cfg.Stdin.Mode != ModeNone {
		w, err := cmd.StdinPipe()
		if err != nil {
			cancel()
			return nil, err
		}
		c.stdin = w
	}

	var stdout, stderr io.ReadCloser
	var err error
	if cfg.Stdout.Mode != ModeNone {
		if stdout, err = cmd.StdoutPipe(); err != nil {
			cancel()
			return nil, err
		}
	}
	if cfg.Stderr.Mode != ModeNone {
		if stderr, err = cmd.StderrPipe(); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	if stdout != nil {
		go relay(cfg.Stdout, stdout)
	}
	if stderr != nil {
		go relay(cfg.Stderr, stderr)
	}

	go func() {
		waitErr := cmd.Wait()
		close(c.done)
		if cfg.OnClose != nil {
			cfg.OnClose(waitErr)
		}
	}()

	return c, nil
}

// Send writes to the child's stdin, framed per the configured mode.
func (c *Child) Send(p []byte) (int, error) {
	if c.stdin == nil {
		return 0, io.ErrClosedPipe
	}
	return c.stdin.Write(p)
}

// PID returns the child's process ID.
func (c *Child) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Close terminates the child using the two-stage ladder: a polite
// SIGTERM first, then, if the process has not exited within killWait,
// SIGKILL.
func (c *Child) Close() {
	if c.cmd.Process == nil {
		c.cancel()
		return
	}

	_ = c.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-c.done:
	case <-time.After(killWait):
		corelog.Warningf("child", "%s: did not exit within %s of SIGTERM, killing", c.cfg.Name, killWait)
		_ = c.cmd.Process.Kill()
		<-c.done
	}
	c.cancel()
}

// ExitCode maps the error handed to OnClose to the status a shell
// would report: 0 on a clean exit, the process's own exit code
// otherwise, and 128+signal when the process died on a signal. Errors
// that carry no exit status (pipe setup failures and the like) map
// to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ee.ExitCode()
}

func relay(sc StreamConfig, r io.ReadCloser) {
	defer r.Close()

	switch sc.Mode {
	case ModeMPEGTS:
		fr := &tscore.Framer{Emit: sc.OnMPEGTS}
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				fr.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}

	case ModeText:
		sc2 := bufio.NewScanner(r)
		for sc2.Scan() {
			if sc.OnText != nil {
				sc.OnText(sc2.Text())
			}
		}

	case ModeRaw:
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 && sc.OnRaw != nil {
				sc.OnRaw(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}
}
