package wake

import (
	"testing"
	"time"
)

func TestOpenCloseRefcounting(t *testing.T) {
	var p Pipe
	if err := p.Open(); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := p.Open(); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if p.ReadFD() == 0 {
		t.Fatal("ReadFD is 0 after Open")
	}

	p.Close()
	if p.ReadFD() == 0 {
		t.Fatal("pipe closed after first Close while refcount still > 0")
	}
	p.Close()
}

func TestCloseWithoutOpenPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Close of never-opened Pipe should panic")
		}
	}()
	var p Pipe
	p.Close()
}

func TestWakeThenDrainDeliversByte(t *testing.T) {
	var p Pipe
	if err := p.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	done := make(chan struct{})
	go func() {
		p.Wake()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake from another goroutine did not return")
	}

	// Drain should not panic and should consume the pending byte
	// without blocking.
	drained := make(chan struct{})
	go func() {
		p.Drain()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("Drain blocked past the pending byte")
	}
}

func TestWakeIsNoopWhenClosed(t *testing.T) {
	var p Pipe
	// Never opened: Wake and Drain must not panic.
	p.Wake()
	p.Drain()
}
