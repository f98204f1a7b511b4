package streamgraph

import "github.com/astrasm/astra-go/internal/tscore"

// Source originates packets (e.g. a tuner or a recorded file reader)
// and has no inbound Send of its own; calling Send on it simply
// fans the packet out to children, letting a Source also act as a
// re-injection point for tests.
type Source struct {
	Base
}

// NewSource returns a Source node named name.
func NewSource(name string) *Source {
	s := &Source{Base: NewBase(name, KindSource)}
	s.Bind(s)
	return s
}

// Send fans pkt out to every attached child.
func (s *Source) Send(pkt []byte) { s.SendToChildren(pkt) }

// Pipe is a transparent pass-through node, useful as an attachment
// point for taps (e.g. internal/recorder) that must not alter the
// stream.
type Pipe struct {
	Base
	Tap func(pkt []byte)
}

// NewPipe returns a Pipe node named name.
func NewPipe(name string) *Pipe {
	p := &Pipe{Base: NewBase(name, KindPipe)}
	p.Bind(p)
	return p
}

// Send invokes Tap (if set) then fans pkt out unchanged.
func (p *Pipe) Send(pkt []byte) {
	if p.Tap != nil {
		p.Tap(pkt)
	}
	p.SendToChildren(pkt)
}

// Sink is a terminal node with no children of its own; Send is the
// only thing it does.
type Sink struct {
	Base
	OnTS func(pkt []byte)
}

// NewSink returns a Sink node named name.
func NewSink(name string) *Sink {
	s := &Sink{Base: NewBase(name, KindSink)}
	s.Bind(s)
	return s
}

// Send delivers pkt to OnTS.
func (s *Sink) Send(pkt []byte) {
	if s.OnTS != nil {
		s.OnTS(pkt)
	}
}

// Demux filters by PID: a child attaches to specific PIDs via Join,
// and only packets on a joined PID are fanned out to it via that
// child-specific subscription, not to every child indiscriminately.
type Demux struct {
	Base
	subs map[uint16][]Node

	// OnJoin/OnLeave observe 0<->1 transitions across the whole
	// demux's PID set, e.g. so an upstream tuner only tunes PIDs that
	// are actually wanted.
	OnJoin  func(pid uint16)
	OnLeave func(pid uint16)
}

// NewDemux returns a Demux node named name.
func NewDemux(name string) *Demux {
	d := &Demux{Base: NewBase(name, KindDemux), subs: make(map[uint16][]Node)}
	d.Bind(d)
	return d
}

func (d *Demux) onJoin(pid uint16)  { if d.OnJoin != nil { d.OnJoin(pid) } }
func (d *Demux) onLeave(pid uint16) { if d.OnLeave != nil { d.OnLeave(pid) } }

// JoinChild subscribes child to pid, incrementing the PID's
// reference count and firing OnJoin on the 0->1 transition.
func (d *Demux) JoinChild(child Node, pid uint16) {
	d.subs[pid] = append(d.subs[pid], child)
	d.JoinPID(d, pid)
}

// LeaveChild unsubscribes child from pid.
func (d *Demux) LeaveChild(child Node, pid uint16) {
	list := d.subs[pid]
	for i, c := range list {
		if c == child {
			d.subs[pid] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(d.subs[pid]) == 0 {
		delete(d.subs, pid)
	}
	d.LeavePID(d, pid)
}

// Send delivers pkt only to children subscribed to its PID.
func (d *Demux) Send(pkt []byte) {
	pid := tscore.Packet(pkt).PID()
	for _, c := range d.subs[pid] {
		c.Send(pkt)
	}
}
