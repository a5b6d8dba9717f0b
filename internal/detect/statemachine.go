package detect

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// StateMachineAdapter recognizes python-statemachine definitions:
// classes whose base list names StateMachine, in a file that imports the
// statemachine package. The library exposes the transition graph through
// the instance's _graph() pydot accessor.
type StateMachineAdapter struct{}

// NewStateMachineAdapter returns the python-statemachine adapter.
func NewStateMachineAdapter() *StateMachineAdapter {
	return &StateMachineAdapter{}
}

// Kind implements Adapter.
func (a *StateMachineAdapter) Kind() string { return "python-statemachine" }

// Recognize matches class definitions inheriting from StateMachine.
func (a *StateMachineAdapter) Recognize(n *sitter.Node, f *File) bool {
	if n.Type() != "class_definition" {
		return false
	}
	if !f.Imports("statemachine") {
		return false
	}
	bases := n.ChildByFieldName("superclasses")
	if bases == nil {
		return false
	}
	for i := 0; i < int(bases.NamedChildCount()); i++ {
		base := bases.NamedChild(i)
		if base.Type() == "identifier" && base.Content(f.Content) == "StateMachine" {
			return true
		}
	}
	return false
}

// ExtractSpan bounds the class definition.
func (a *StateMachineAdapter) ExtractSpan(n *sitter.Node, f *File) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

// Excerpt returns the statemachine imports plus the class body.
func (a *StateMachineAdapter) Excerpt(n *sitter.Node, f *File) string {
	start, end := a.ExtractSpan(n, f)
	return joinExcerpt(f.ImportLines("statemachine"), f.sliceLines(start, end))
}

// Confidence implements Adapter. Base-class matches are unambiguous.
func (a *StateMachineAdapter) Confidence(n *sitter.Node, f *File) float64 {
	return 1.0
}

// BuildHarness wraps the excerpt in a program that instantiates the
// first StateMachine subclass in scope and prints its DOT graph between
// the salted delimiters.
func (a *StateMachineAdapter) BuildHarness(excerpt, salt string) string {
	return fmt.Sprintf(`import sys
try:
%s

    import inspect
    from statemachine import StateMachine

    for _name, _obj in dict(locals()).items():
        if inspect.isclass(_obj) and issubclass(_obj, StateMachine) and _obj is not StateMachine:
            _dot = _obj()._graph().to_string()
            print(%q)
            print(_dot)
            print(%q)
            sys.exit(0)
    print("no StateMachine subclass found", file=sys.stderr)
    sys.exit(1)
except Exception:
    import traceback
    traceback.print_exc(file=sys.stderr)
    sys.exit(1)
`, indentBlock(excerpt, 4), BeginMarker(salt), EndMarker(salt))
}
