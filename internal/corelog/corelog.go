// Package corelog provides the leveled, subsystem-tagged logger used
// throughout the engine: severity levels, a bracketed subsystem tag
// per message, and in-place reopen of the log file on SIGHUP.
package corelog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// Level is a log severity, ordered least to most severe for filtering.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var colors = map[Level]string{
	LevelDebug:   "\x1b[36m",
	LevelInfo:    "",
	LevelWarning: "\x1b[33m",
	LevelError:   "\x1b[31m",
}

const colorReset = "\x1b[0m"

type logger struct {
	mu       sync.Mutex
	out      *log.Logger
	filename string
	file     *os.File
	debug    bool
	color    bool
}

var global = newLogger(os.Stderr)

func newLogger(w io.Writer) *logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return &logger{out: log.New(w, "", log.LstdFlags), color: color}
}

// SetDebug enables or disables DEBUG-level output.
func SetDebug(enabled bool) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.debug = enabled
}

// SetFile redirects log output to the named file, closing any
// previously opened file. Reopen re-opens the same path, e.g. after
// log rotation on SIGHUP.
func SetFile(path string) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.setFile(path)
}

func (l *logger) setFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.filename = path
	l.out = log.New(f, "", log.LstdFlags)
	l.color = false
	return nil
}

// Reopen closes and reopens the current log file in place, for the
// SIGHUP log-rotation path.
func Reopen() {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.filename != "" {
		_ = global.setFile(global.filename)
	}
}

func logf(lv Level, tag, format string, args ...any) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if lv == LevelDebug && !global.debug {
		return
	}

	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s: %s", tag, lv, msg)
	if global.color {
		line = colors[lv] + line + colorReset
	}
	global.out.Print(line)
}

func Debugf(tag, format string, args ...any)   { logf(LevelDebug, tag, format, args...) }
func Infof(tag, format string, args ...any)    { logf(LevelInfo, tag, format, args...) }
func Warningf(tag, format string, args ...any) { logf(LevelWarning, tag, format, args...) }
func Errorf(tag, format string, args ...any)   { logf(LevelError, tag, format, args...) }
