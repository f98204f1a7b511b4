// Package mainloop implements the single privileged event loop that
// drives the whole streaming engine: poll for readiness, service
// control flags, run a periodic GC hint, drain deferred jobs,
// recompute the next sleep.
package mainloop

import (
	"os"
	"time"

	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/event"
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/timer"
	"github.com/astrasm/astra-go/internal/wake"
)

// ExitMainLoop is the process exit code used by the forced-exit
// shutdown escalation path.
const ExitMainLoop = 3

// gcInterval is the cadence at which Host.GCHint is invoked
// regardless of other activity.
const gcInterval = 1 * time.Second

// Outcome is the result of one RunOnce call.
type Outcome int

const (
	// Continue means the loop should call RunOnce again immediately.
	Continue Outcome = iota
	// Stop means a graceful shutdown was requested.
	Stop
	// Restart means the instance should be restarted (reload request,
	// or a recoverable polling failure).
	Restart
)

const (
	flagSIGHUP = 1 << iota
	flagReload
	flagShutdown
)

// Host receives lifecycle hooks from the loop: a periodic GC-style
// hint and a SIGHUP notification. Both may be no-ops.
type Host interface {
	GCHint()
	OnSIGHUP()
}

// Loop is the main event loop.
type Loop struct {
	Events *event.Loop
	Timers *timer.Wheel
	Jobs   *jobqueue.Queue
	Wake   *wake.Pipe
	Host   Host

	flags   uint32
	stopCnt int
	lastGC  time.Time
	now     func() time.Time
}

// New wires a Loop from its components. now defaults to time.Now.
func New(ev *event.Loop, tw *timer.Wheel, jq *jobqueue.Queue, wk *wake.Pipe, host Host) *Loop {
	return &Loop{Events: ev, Timers: tw, Jobs: jq, Wake: wk, Host: host, now: time.Now}
}

// RequestShutdown asks the loop to stop gracefully. If called three
// times while the loop is not currently servicing flags (i.e. the
// main goroutine appears blocked), the process exits immediately via
// os.Exit(ExitMainLoop) rather than risk a self-join deadlock in the
// normal teardown path.
func (l *Loop) RequestShutdown() {
	if l.flags&flagShutdown != 0 {
		l.stopCnt++
	} else {
		l.stopCnt = 1
	}
	l.flags |= flagShutdown

	if l.stopCnt >= 3 {
		os.Exit(ExitMainLoop)
	}
	if l.stopCnt == 2 {
		corelog.Errorf("mainloop", "main thread appears to be blocked; will abort on next shutdown request")
	}
}

// RequestReload asks the loop to report Restart on its next iteration.
func (l *Loop) RequestReload() {
	l.flags |= flagReload
}

// RequestSIGHUP asks the loop to reopen logs and invoke Host.OnSIGHUP
// on its next iteration.
func (l *Loop) RequestSIGHUP() {
	l.flags |= flagSIGHUP
}

// RunOnce executes exactly one iteration: poll for readiness, service
// any pending control flags, fire the periodic GC hint, drain deferred
// jobs, and compute the next poll timeout from the timer wheel.
func (l *Loop) RunOnce(sleep time.Duration) (Outcome, time.Duration) {
	if !l.Events.Run(sleep) {
		return Restart, timer.DelayMax
	}

	if l.flags != 0 {
		flags := l.flags
		l.flags = 0

		switch {
		case flags&flagShutdown != 0:
			l.stopCnt = 0
			return Stop, 0
		case flags&flagReload != 0:
			return Restart, 0
		case flags&flagSIGHUP != 0:
			corelog.Reopen()
			if l.Host != nil {
				l.Host.OnSIGHUP()
			}
		}
	}

	now := l.now()
	if l.lastGC.IsZero() {
		l.lastGC = now
	}
	if now.Sub(l.lastGC) >= gcInterval {
		l.lastGC = now
		if l.Host != nil {
			l.Host.GCHint()
		}
	}

	l.Jobs.Drain()
	next := l.Timers.RunDue(l.now())

	return Continue, next
}

// Run repeatedly calls RunOnce until it reports anything but Continue.
func (l *Loop) Run() Outcome {
	sleep := timer.DelayMax
	for {
		outcome, next := l.RunOnce(sleep)
		if outcome != Continue {
			return outcome
		}
		sleep = next
	}
}
