// Package recorder implements optional on-disk capture of a tapped
// point in the graph: raw TS, compressed with brotli to bound disk
// usage.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

// Recorder appends TS packets to a brotli-compressed file. It is safe
// for concurrent use by multiple caller goroutines (e.g. a streaming
// module's Send and a periodic flush timer), matching the rest of the
// engine's "each shared buffer brings its own lock" policy.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *brotli.Writer
	closed bool

	Written int64 // packets written, for diagnostics/health reporting
}

// Open creates (or truncates) dir/name-<unix-timestamp>.ts.br and
// returns a Recorder appending brotli-compressed TS packets to it.
func Open(dir, name string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.ts.br", name, time.Now().Unix()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	return &Recorder{file: f, writer: brotli.NewWriterLevel(f, brotli.DefaultCompression)}, nil
}

// Tap is a streamgraph.Pipe.Tap-compatible callback that records pkt
// and swallows any write error into a log line rather than panicking
// a streaming callback, since TS callbacks must never block or abort
// on a recorder fault per the engine's non-blocking-callback rule.
func (r *Recorder) Tap(pkt []byte) {
	if err := r.Write(pkt); err != nil {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}
}

// Write appends pkt to the capture.
func (r *Recorder) Write(pkt []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if _, err := r.writer.Write(pkt); err != nil {
		return fmt.Errorf("recorder: write: %w", err)
	}
	r.Written++
	return nil
}

// Close flushes and closes the underlying brotli writer and file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.writer.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("recorder: close writer: %w", err)
	}
	return r.file.Close()
}
