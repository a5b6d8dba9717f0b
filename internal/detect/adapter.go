package detect

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Adapter recognizes one structural FSM convention and knows how to turn
// a recognized occurrence into an executable harness. Adding support for
// a new library means adding one Adapter implementation; the detector's
// control flow never changes.
type Adapter interface {
	// Kind is the stable convention tag carried on candidates.
	Kind() string

	// Recognize reports whether the node is an occurrence of this
	// convention in the given file. Must be side-effect free.
	Recognize(n *sitter.Node, f *File) bool

	// ExtractSpan bounds the excerpt for a recognized node, 1-based
	// inclusive line numbers.
	ExtractSpan(n *sitter.Node, f *File) (start, end int)

	// Excerpt assembles the self-contained source excerpt for a
	// recognized node, including the imports the harness needs.
	Excerpt(n *sitter.Node, f *File) string

	// Confidence scores a recognized node. Heuristic matches score
	// below the configured floor and are dropped.
	Confidence(n *sitter.Node, f *File) float64

	// BuildHarness wraps the excerpt in a runnable program that invokes
	// the convention's export operation and prints the DOT between the
	// salted delimiter pair.
	BuildHarness(excerpt, salt string) string
}

// Registry is the closed set of known adapters.
type Registry struct {
	adapters []Adapter
	byKind   map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byKind: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters = append(r.adapters, a)
		r.byKind[a.Kind()] = a
	}
	return r
}

// DefaultRegistry returns the registry of all supported FSM libraries.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewStateMachineAdapter(),
		NewTransitionsAdapter(),
		NewAutomataAdapter(),
	)
}

// Lookup returns the adapter for a candidate kind.
func (r *Registry) Lookup(kind string) (Adapter, bool) {
	a, ok := r.byKind[kind]
	return a, ok
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}
