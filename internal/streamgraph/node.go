// Package streamgraph implements the polymorphic streaming module
// graph: nodes that source, pipe, sink, demux, or decapsulate TS
// packets, attached into parent/child relationships with PID-demux
// reference counting. Child iteration is cursor-safe, so a child may
// detach itself from inside its own TS callback.
package streamgraph

import (
	"github.com/astrasm/astra-go/internal/container"
)

// Kind identifies a node's role in the graph.
type Kind int

const (
	KindSource Kind = iota
	KindPipe
	KindSink
	KindDemux
	KindDecap
)

// Node is the common interface every graph participant implements.
type Node interface {
	Kind() Kind
	Name() string
	// Send delivers one TS packet to this node. Source nodes normally
	// originate calls to their children's Send rather than receiving
	// them.
	Send(pkt []byte)
}

// demuxAware is implemented by nodes that care about PID join/leave
// transitions among their children (KindDemux nodes).
type demuxAware interface {
	onJoin(pid uint16)
	onLeave(pid uint16)
}

// Base provides the parent/child bookkeeping shared by every Node
// implementation: attach/detach, cursor-safe fan-out, and PID-demux
// refcounting with join/leave hooks fired exactly on 0<->1 transitions.
type Base struct {
	name     string
	kind     Kind
	self     Node
	parent   Node
	children container.List[Node]

	pidRefs map[uint16]int
}

// NewBase constructs the embeddable Base for a concrete node type.
// Callers must follow up with Bind(self) once the owning value exists
// (every constructor in this package does), so Attach can record a
// child's parent back-reference.
func NewBase(name string, kind Kind) Base {
	return Base{name: name, kind: kind, pidRefs: make(map[uint16]int)}
}

// Bind records self as the concrete Node value embedding this Base.
// Without it, children attached under self would never learn their
// parent (Parent would read back nil).
func (b *Base) Bind(self Node) {
	b.self = self
}

// Parent returns the node this one is currently attached under, or
// nil if unattached.
func (b *Base) Parent() Node {
	return b.parent
}

// parentSetter is implemented by every *Base-embedding node,
// unexported since only this package's Attach/Detach call it.
type parentSetter interface {
	setParent(Node)
}

func (b *Base) setParent(p Node) {
	b.parent = p
}

func (b *Base) Kind() Kind   { return b.kind }
func (b *Base) Name() string { return b.name }

// Attach adds child as a child of the node owning this Base and
// records that node as child's parent.
func (b *Base) Attach(child Node) {
	b.children.InsertTail(child)
	if ps, ok := child.(parentSetter); ok {
		ps.setParent(b.self)
	}
}

// Detach removes child and clears its parent back-reference. Safe to
// call re-entrantly from within SendToChildren's walk (e.g. a child
// detaching itself in response to the very packet it's receiving).
func (b *Base) Detach(child Node) {
	if b.children.RemoveItem(child, func(a, c Node) bool { return a == c }) {
		if ps, ok := child.(parentSetter); ok {
			ps.setParent(nil)
		}
	}
}

// SendToChildren fan-outs pkt to every attached child in insertion
// order, safe against a child detaching itself mid-walk.
func (b *Base) SendToChildren(pkt []byte) {
	b.children.Walk(func(c Node) bool {
		c.Send(pkt)
		return true
	})
}

// Children returns a snapshot of currently attached children.
func (b *Base) Children() []Node {
	return b.children.Items()
}

// JoinPID increments the reference count for pid, firing the owning
// demux node's onJoin hook exactly on the 0->1 transition.
func (b *Base) JoinPID(owner Node, pid uint16) {
	b.pidRefs[pid]++
	if b.pidRefs[pid] == 1 {
		if d, ok := owner.(demuxAware); ok {
			d.onJoin(pid)
		}
	}
}

// LeavePID decrements the reference count for pid, firing onLeave
// exactly on the 1->0 transition. Leaving a PID with no outstanding
// references is a no-op.
func (b *Base) LeavePID(owner Node, pid uint16) {
	if b.pidRefs[pid] == 0 {
		return
	}
	b.pidRefs[pid]--
	if b.pidRefs[pid] == 0 {
		delete(b.pidRefs, pid)
		if d, ok := owner.(demuxAware); ok {
			d.onLeave(pid)
		}
	}
}

// RefCount reports the current join count for pid.
func (b *Base) RefCount(pid uint16) int {
	return b.pidRefs[pid]
}
