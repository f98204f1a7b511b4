// Package modules registers the concrete streaming modules that ship
// with the engine (file source, PES reassembler, sync buffer, T2-MI
// decapsulator, demux, child-process relay, network sink) into
// internal/scripthost.Default, so any internal/scripthost/jsonhost
// pipeline document can reference them by name. Registration happens
// in init functions; importing this package is all a binary needs to
// make the full module set available.
package modules

import (
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/t2mi"
	"github.com/astrasm/astra-go/internal/timer"
	"github.com/astrasm/astra-go/internal/wake"
	"github.com/astrasm/astra-go/internal/worker"
)

// Pumped is implemented by source modules that need a background
// reader pumping packets into the graph through the job queue rather
// than being driven by an upstream Send call.
type Pumped interface {
	// Pump starts the background reader. Packets are delivered to the
	// graph only via jobs.Push from the worker goroutine, never by
	// calling Send directly from that goroutine, preserving the
	// "module graph touched only from the main thread" rule.
	Pump(jobs *jobqueue.Queue, wk *wake.Pipe, sup *worker.Supervisor)
}

// Scheduled is implemented by modules (the sync buffer) that need a
// recurring timer callback on the main loop.
type Scheduled interface {
	Schedule(tw *timer.Wheel)
}

// Defaults are engine-wide fallbacks applied when a pipeline document
// omits the corresponding module option. cmd/astrad populates them
// from the environment config before loading the pipeline.
var Defaults = struct {
	// SyncOpts is the sync-buffer option string "enough,low,max_mib";
	// empty means the built-in "10,5,8".
	SyncOpts string
	// T2MIPLP is the PLP selected when a t2mi module names none.
	T2MIPLP uint16
}{T2MIPLP: t2mi.PLPAuto}
