// Package jsonhost is the minimal concrete scripthost.Host this
// repository builds so cmd/astrad can wire up a module graph without
// an embedded scripting language: it resolves module options from a
// decoded JSON document instead of a VM's option stack. Unknown
// fields in the document are rejected so typos fail loudly.
package jsonhost

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/streamgraph"
)

// ModuleDecl declares one module instance in a pipeline document.
type ModuleDecl struct {
	ID      string         `json:"id"`
	Module  string         `json:"module"`
	Options map[string]any `json:"options"`
	// Attach lists child instance IDs to graph-attach under this
	// instance, in declaration order (so insertion order is the order
	// children appear in the JSON array, per the engine's ordering
	// guarantee).
	Attach []string `json:"attach"`
	// Join subscribes a child instance to specific PIDs on this
	// instance, when this instance is a demux.
	Join []JoinDecl `json:"join"`
}

// JoinDecl is one demux-child PID subscription.
type JoinDecl struct {
	Child string `json:"child"`
	PID   int    `json:"pid"`
}

// Doc is the top-level pipeline document shape.
type Doc struct {
	Modules []ModuleDecl `json:"modules"`
}

// Host is the shared scripting-host state: the SIGHUP hook registry.
// One Host is shared by every module instance in a pipeline; each
// instance sees it through a per-instance moduleHost wrapper so its
// Option* calls resolve against that instance's own options, matching
// the "conventional options table on the stack" contract without a
// real stack.
type Host struct {
	mu      sync.Mutex
	sighups []func()
}

// New returns an empty Host.
func New() *Host {
	return &Host{}
}

// OnSIGHUP satisfies internal/mainloop.Host: it runs every function
// registered by a module instance via its per-instance OnSIGHUP call.
func (h *Host) OnSIGHUP() {
	h.mu.Lock()
	fns := append([]func(){}, h.sighups...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// GCHint satisfies internal/mainloop.Host. Go's GC runs independently
// of this hook; it exists only so a future embedded scripting VM can
// be wired in without changing internal/mainloop.
func (h *Host) GCHint() {}

func (h *Host) registerSIGHUP(fn func()) {
	h.mu.Lock()
	h.sighups = append(h.sighups, fn)
	h.mu.Unlock()
}

// moduleHost is the per-instance view of Host implementing
// scripthost.Host, scoped to one ModuleDecl's options map.
type moduleHost struct {
	host *Host
	opts map[string]any
}

func (m *moduleHost) OptionInt(name string) (int, bool) {
	v, ok := m.opts[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func (m *moduleHost) OptionStr(name string) (string, bool) {
	v, ok := m.opts[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *moduleHost) OptionBool(name string) (bool, bool) {
	v, ok := m.opts[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (m *moduleHost) OnSIGHUP(fn func()) {
	m.host.registerSIGHUP(fn)
}

// Pipeline is a loaded, initialized module graph.
type Pipeline struct {
	Host      *Host
	Instances map[string]scripthost.Instance
	// Roots are instances no other instance declared as a child,
	// i.e. the graph's entry points (typically sources).
	Roots []scripthost.Instance
}

// Destroy tears down every instance. Order is unspecified; each
// instance's Destroy is expected to be idempotent-safe against a
// parent already having detached it.
func (p *Pipeline) Destroy() {
	for _, inst := range p.Instances {
		inst.Destroy()
	}
}

// Load reads, parses and wires the pipeline document at path against
// reg, returning the initialized Pipeline.
func Load(path string, reg *scripthost.Registry) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jsonhost: open %s: %w", path, err)
	}
	defer f.Close()

	var doc Doc
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("jsonhost: decode %s: %w", path, err)
	}
	if len(doc.Modules) == 0 {
		return nil, fmt.Errorf("jsonhost: %s declares no modules", path)
	}

	host := New()
	instances := make(map[string]scripthost.Instance, len(doc.Modules))
	isChild := make(map[string]bool)

	for i := range doc.Modules {
		decl := &doc.Modules[i]
		decl.ID = strings.TrimSpace(decl.ID)
		if decl.ID == "" {
			return nil, fmt.Errorf("jsonhost: modules[%d].id required", i)
		}
		if _, dup := instances[decl.ID]; dup {
			return nil, fmt.Errorf("jsonhost: duplicate module id %q", decl.ID)
		}

		inst, err := reg.New(decl.Module)
		if err != nil {
			return nil, fmt.Errorf("jsonhost: %s: %w", decl.ID, err)
		}
		mh := &moduleHost{host: host, opts: decl.Options}
		if err := inst.Init(mh); err != nil {
			return nil, fmt.Errorf("jsonhost: init %s (%s): %w", decl.ID, decl.Module, err)
		}
		instances[decl.ID] = inst
	}

	for i := range doc.Modules {
		decl := &doc.Modules[i]
		parent := instances[decl.ID].Node()

		for _, childID := range decl.Attach {
			child, ok := instances[childID]
			if !ok {
				return nil, fmt.Errorf("jsonhost: %s: unknown attach target %q", decl.ID, childID)
			}
			childNode := child.Node()
			if parent == nil || childNode == nil {
				return nil, fmt.Errorf("jsonhost: %s: attach requires both ends to be streaming nodes", decl.ID)
			}
			attachNode(parent, childNode)
			isChild[childID] = true
		}

		for _, j := range decl.Join {
			child, ok := instances[j.Child]
			if !ok {
				return nil, fmt.Errorf("jsonhost: %s: unknown join child %q", decl.ID, j.Child)
			}
			joiner, ok := parent.(demuxJoiner)
			if !ok {
				return nil, fmt.Errorf("jsonhost: %s is not a demux, cannot join", decl.ID)
			}
			joiner.JoinChild(child.Node(), uint16(j.PID))
		}
	}

	p := &Pipeline{Host: host, Instances: instances}
	for id, inst := range instances {
		if !isChild[id] {
			p.Roots = append(p.Roots, inst)
		}
	}
	return p, nil
}

// demuxJoiner is satisfied by streamgraph.Demux.
type demuxJoiner interface {
	JoinChild(child streamgraph.Node, pid uint16)
}

func attachNode(parent, child streamgraph.Node) {
	type attacher interface{ Attach(streamgraph.Node) }
	if a, ok := parent.(attacher); ok {
		a.Attach(child)
	}
}
