package detect

import "strings"

// File carries the parsed source and its import index so adapters can
// check library usage without re-walking the tree.
type File struct {
	Path    string
	Content []byte
	Lines   []string

	// Modules holds the dotted module paths imported by the file,
	// e.g. "statemachine", "transitions.extensions".
	Modules map[string]bool

	// Names holds the imported names, e.g. "StateMachine", "GraphMachine".
	Names map[string]bool
}

func newFile(path string, content []byte) *File {
	return &File{
		Path:    path,
		Content: content,
		Lines:   strings.Split(string(content), "\n"),
		Modules: make(map[string]bool),
		Names:   make(map[string]bool),
	}
}

// Imports reports whether the file imports the given module or any of
// its submodules.
func (f *File) Imports(module string) bool {
	if f.Modules[module] {
		return true
	}
	prefix := module + "."
	for m := range f.Modules {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// ImportsName reports whether the file imports the given name directly
// (from X import Name).
func (f *File) ImportsName(name string) bool {
	return f.Names[name]
}

// ImportLines returns the source lines that import any of the given
// modules, in file order. Adapters prepend these to the excerpt so the
// harness is self-contained.
func (f *File) ImportLines(modules ...string) []string {
	var out []string
	for _, line := range f.Lines {
		trimmed := strings.TrimSpace(line)
		for _, m := range modules {
			if strings.HasPrefix(trimmed, "from "+m) || strings.HasPrefix(trimmed, "import "+m) {
				out = append(out, line)
				break
			}
		}
	}
	return out
}

// lineText returns the 1-based line, or "" when out of range.
func (f *File) lineText(n int) string {
	if n < 1 || n > len(f.Lines) {
		return ""
	}
	return f.Lines[n-1]
}

// sliceLines returns lines [start, end], 1-based inclusive, joined with
// newlines.
func (f *File) sliceLines(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(f.Lines) {
		end = len(f.Lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(f.Lines[start-1:end], "\n")
}
