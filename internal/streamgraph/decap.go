package streamgraph

import "github.com/astrasm/astra-go/internal/t2mi"

// Decap wraps a T2-MI decapsulator as a graph node: outer TS packets
// fed in via Send are interpreted as T2-MI and the extracted inner TS
// packets are fanned out to children.
type Decap struct {
	Base
	decap *t2mi.Decapsulator
}

// childJoiner is satisfied by *Demux; it lets Decap propagate the
// wrapped decapsulator's PID join/leave hooks to whichever demux it is
// attached under, so the upstream demux only forwards the outer
// payload PID while the decapsulator actually needs it.
type childJoiner interface {
	JoinChild(child Node, pid uint16)
	LeaveChild(child Node, pid uint16)
}

// NewDecap returns a Decap node wrapping d, wiring its OnTS to fan out
// to this node's children and its OnJoin/OnLeave to propagate to this
// node's parent (if attached under a demux) via Parent/JoinChild.
func NewDecap(name string, d *t2mi.Decapsulator) *Decap {
	n := &Decap{Base: NewBase(name, KindDecap), decap: d}
	n.Bind(n)
	d.OnTS = n.SendToChildren
	d.OnJoin = func(pid uint16) {
		if jc, ok := n.Parent().(childJoiner); ok {
			jc.JoinChild(n, pid)
		}
	}
	d.OnLeave = func(pid uint16) {
		if jc, ok := n.Parent().(childJoiner); ok {
			jc.LeaveChild(n, pid)
		}
	}
	return n
}

// Send feeds pkt to the wrapped decapsulator.
func (n *Decap) Send(pkt []byte) {
	n.decap.Decap(pkt)
}
