// Package scripthost defines the contract the core depends on from its
// embedded scripting host: a module registry of
// manifests, option accessors, a SIGHUP hook, and a periodic GC hint.
// The scripting language itself is out of scope; only this consumed
// interface, plus a minimal concrete implementation
// (internal/scripthost/jsonhost), lives in this repository.
package scripthost

import (
	"fmt"
	"sort"

	"github.com/astrasm/astra-go/internal/streamgraph"
)

// Type identifies a module's registration kind.
type Type int

const (
	// Basic modules have no streaming graph presence (e.g. a
	// diagnostics exporter).
	Basic Type = iota
	// Streaming modules participate in the streaming module graph and
	// must return a non-nil streamgraph.Node from Instance.Node.
	Streaming
	// Binding modules expose host-callable methods without being part
	// of the streaming graph or an independent module instance (e.g. a
	// helper library registered for scripts to call into).
	Binding
)

// Host is the interface a module instance uses to read its
// configuration and register host-level hooks, standing in for the
// conventional options table a real scripting VM would keep on its
// stack.
type Host interface {
	OptionInt(name string) (int, bool)
	OptionStr(name string) (string, bool)
	OptionBool(name string) (bool, bool)
	// OnSIGHUP registers fn to run when the host's SIGHUP hook fires.
	OnSIGHUP(fn func())
}

// Instance is one running module. Streaming instances additionally
// return a non-nil Node.
type Instance interface {
	// Init configures the instance from h. A configuration error is
	// returned as a plain error; Init failing means the module does
	// not come up.
	Init(h Host) error
	// Destroy releases any resources and detaches from the graph.
	Destroy()
	// Node returns this instance's graph participation, or nil for a
	// Basic/Binding module.
	Node() streamgraph.Node
}

// Manifest is what a module publishes to the registry. The runtime
// allocates instances, so instead of an instance size the manifest
// carries a New constructor closure.
type Manifest struct {
	Name string
	Type Type
	New  func() Instance
}

// Registry maps module names to manifests, populated once at startup
// by every package under internal/modules via Register in an init
// function.
type Registry struct {
	manifests map[string]Manifest
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{manifests: make(map[string]Manifest)}
}

// Register adds m. It panics on a duplicate name, since module names
// collide only as a programming error (two packages registering the
// same name), never as a runtime condition to recover from.
func (r *Registry) Register(m Manifest) {
	if _, exists := r.manifests[m.Name]; exists {
		panic(fmt.Sprintf("scripthost: module %q already registered", m.Name))
	}
	r.manifests[m.Name] = m
}

// Lookup returns the manifest registered under name.
func (r *Registry) Lookup(name string) (Manifest, bool) {
	m, ok := r.manifests[name]
	return m, ok
}

// New instantiates a fresh Instance for the module registered as name.
func (r *Registry) New(name string) (Instance, error) {
	m, ok := r.manifests[name]
	if !ok {
		return nil, fmt.Errorf("scripthost: unknown module %q", name)
	}
	return m.New(), nil
}

// Names returns every registered module name, sorted, for diagnostics
// and tests.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.manifests))
	for name := range r.manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry internal/modules packages
// register themselves into.
var Default = NewRegistry()
