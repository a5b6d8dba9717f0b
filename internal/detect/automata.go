package detect

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// AutomataAdapter recognizes automata-lib finite automata: DFA or NFA
// constructor calls in a file importing automata.fa. The library renders
// diagrams through show_diagram(), which returns a graphviz Digraph.
type AutomataAdapter struct{}

// NewAutomataAdapter returns the automata-lib adapter.
func NewAutomataAdapter() *AutomataAdapter {
	return &AutomataAdapter{}
}

// Kind implements Adapter.
func (a *AutomataAdapter) Kind() string { return "automata-lib" }

// Recognize matches DFA(...) / NFA(...) constructor calls.
func (a *AutomataAdapter) Recognize(n *sitter.Node, f *File) bool {
	if n.Type() != "call" {
		return false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return false
	}
	switch fn.Content(f.Content) {
	case "DFA", "NFA":
		return f.Imports("automata")
	}
	return false
}

// ExtractSpan widens backwards over the assignment statement holding the
// constructor call, which regularly spans many lines of literal tables.
func (a *AutomataAdapter) ExtractSpan(n *sitter.Node, f *File) (int, int) {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1

	// The call usually sits on the right of an assignment; include it.
	if line := strings.TrimSpace(f.lineText(start)); !strings.Contains(line, "=") && start > 1 {
		if prev := strings.TrimSpace(f.lineText(start - 1)); strings.HasSuffix(prev, "=") || strings.HasSuffix(prev, "(") {
			start--
		}
	}
	return start, end
}

// Excerpt returns the automata imports plus the constructor call.
func (a *AutomataAdapter) Excerpt(n *sitter.Node, f *File) string {
	start, end := a.ExtractSpan(n, f)
	return joinExcerpt(f.ImportLines("automata"), f.sliceLines(start, end))
}

// Confidence implements Adapter. Constructor matches are unambiguous.
func (a *AutomataAdapter) Confidence(n *sitter.Node, f *File) float64 {
	return 1.0
}

// BuildHarness wraps the excerpt in a program that finds the automaton
// instance in scope and prints its diagram source between the salted
// delimiters.
func (a *AutomataAdapter) BuildHarness(excerpt, salt string) string {
	return fmt.Sprintf(`import sys
try:
%s

    from automata.fa.fa import FA

    for _name, _obj in dict(locals()).items():
        if isinstance(_obj, FA):
            _dot = _obj.show_diagram().source
            print(%q)
            print(_dot)
            print(%q)
            sys.exit(0)
    print("no automaton instance found", file=sys.stderr)
    sys.exit(1)
except Exception:
    import traceback
    traceback.print_exc(file=sys.stderr)
    sys.exit(1)
`, indentBlock(excerpt, 4), BeginMarker(salt), EndMarker(salt))
}
