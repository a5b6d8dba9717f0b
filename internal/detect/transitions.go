package detect

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// TransitionsAdapter recognizes transitions-library machines: calls to
// GraphMachine (graph export supported) or plain Machine (heuristic,
// scored below the default floor since the base class cannot export a
// graph). The span widens backwards over the contiguous statement block
// so state and transition table literals travel with the call.
type TransitionsAdapter struct {
	// contextLines bounds the backwards widening.
	contextLines int
}

// NewTransitionsAdapter returns the transitions adapter.
func NewTransitionsAdapter() *TransitionsAdapter {
	return &TransitionsAdapter{contextLines: 20}
}

// Kind implements Adapter.
func (a *TransitionsAdapter) Kind() string { return "transitions" }

// Recognize matches GraphMachine(...) and Machine(...) call expressions.
func (a *TransitionsAdapter) Recognize(n *sitter.Node, f *File) bool {
	name := a.calleeName(n, f)
	switch name {
	case "GraphMachine":
		return f.Imports("transitions.extensions") || f.ImportsName("GraphMachine")
	case "Machine":
		return f.Imports("transitions")
	}
	return false
}

// ExtractSpan widens the call site backwards over the contiguous block
// of non-comment lines that typically hold the states and transitions
// literals the call refers to.
func (a *TransitionsAdapter) ExtractSpan(n *sitter.Node, f *File) (int, int) {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1

	floor := start - a.contextLines
	if floor < 1 {
		floor = 1
	}
	for line := start - 1; line >= floor; line-- {
		text := strings.TrimSpace(f.lineText(line))
		if text == "" || strings.HasPrefix(text, "#") {
			break
		}
		start = line
	}
	return start, end
}

// Excerpt returns the transitions imports plus the widened call context.
func (a *TransitionsAdapter) Excerpt(n *sitter.Node, f *File) string {
	start, end := a.ExtractSpan(n, f)
	return joinExcerpt(f.ImportLines("transitions"), f.sliceLines(start, end))
}

// Confidence scores GraphMachine matches as certain and plain Machine
// matches as heuristic; the base Machine has no graph export, so those
// candidates fall below the default confidence floor.
func (a *TransitionsAdapter) Confidence(n *sitter.Node, f *File) float64 {
	if a.calleeName(n, f) == "GraphMachine" {
		return 1.0
	}
	return 0.5
}

// BuildHarness wraps the excerpt in a program that locates the
// GraphMachine instance in scope and prints its graph source between the
// salted delimiters.
func (a *TransitionsAdapter) BuildHarness(excerpt, salt string) string {
	return fmt.Sprintf(`import sys
try:
%s

    from transitions.extensions import GraphMachine

    for _name, _obj in dict(locals()).items():
        if isinstance(_obj, GraphMachine):
            _dot = _obj.get_graph().source
            print(%q)
            print(_dot)
            print(%q)
            sys.exit(0)
    print("no GraphMachine instance found", file=sys.stderr)
    sys.exit(1)
except Exception:
    import traceback
    traceback.print_exc(file=sys.stderr)
    sys.exit(1)
`, indentBlock(excerpt, 4), BeginMarker(salt), EndMarker(salt))
}

// calleeName returns the simple identifier a call invokes, or "".
func (a *TransitionsAdapter) calleeName(n *sitter.Node, f *File) string {
	if n.Type() != "call" {
		return ""
	}
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return ""
	}
	return fn.Content(f.Content)
}
