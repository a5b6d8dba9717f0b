// Package detect statically recognizes state-machine definitions written
// against known Python FSM libraries. It parses source with tree-sitter and
// matches AST nodes against a closed registry of adapters; recognition has
// no side effects and never executes candidate code.
package detect

import "fmt"

// Candidate is one recognized FSM occurrence in a source file. It is
// immutable after creation.
type Candidate struct {
	// Path is the source file the candidate was found in.
	Path string

	// StartLine and EndLine bound the definition, 1-based inclusive.
	StartLine int
	EndLine   int

	// Kind names the adapter that recognized the candidate.
	Kind string

	// Source is the self-contained excerpt (relevant imports plus the
	// definition) that the sandbox harness wraps.
	Source string

	// Confidence is the adapter-supplied static confidence in [0,1].
	// Unambiguous structural matches score 1.0.
	Confidence float64
}

// Provenance returns the file:line tag used in record attribution.
func (c Candidate) Provenance() string {
	return fmt.Sprintf("%s:%d", c.Path, c.StartLine)
}
