package detect

import (
	"context"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"
)

// Detector parses Python source with tree-sitter and matches it against
// the adapter registry. A Detector is not safe for concurrent use; the
// pipeline creates one per worker.
type Detector struct {
	parser   *sitter.Parser
	registry *Registry
	floor    float64
	logger   *zap.Logger

	parseFailed bool
	belowFloor  int
}

// NewDetector creates a detector over the given registry. Candidates
// scoring below floor are dropped before they leave the detector.
func NewDetector(registry *Registry, floor float64, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Detector{
		parser:   parser,
		registry: registry,
		floor:    floor,
		logger:   logger,
	}
}

// Close releases the tree-sitter parser.
func (d *Detector) Close() {
	d.parser.Close()
}

// Detect returns all candidates recognized in the source. Files that
// fail to parse yield zero candidates; a malformed file must never abort
// a batch, so parse failures are logged and swallowed here.
func (d *Detector) Detect(path string, content []byte) []Candidate {
	d.parseFailed = false
	d.belowFloor = 0

	if !utf8.Valid(content) {
		d.parseFailed = true
		d.logger.Debug("Skipping non-UTF-8 file", zap.String("path", path))
		return nil
	}

	tree, err := d.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		d.parseFailed = true
		d.logger.Warn("Detection parse failed",
			zap.String("path", path),
			zap.Error(err))
		return nil
	}
	defer tree.Close()

	f := newFile(path, content)
	root := tree.RootNode()
	d.indexImports(root, f)

	var candidates []Candidate
	d.walk(root, f, &candidates)

	d.logger.Debug("Detection complete",
		zap.String("path", path),
		zap.Int("candidates", len(candidates)))
	return candidates
}

// walk offers every named node to each registered adapter.
func (d *Detector) walk(node *sitter.Node, f *File, out *[]Candidate) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		for _, a := range d.registry.Adapters() {
			if !a.Recognize(child, f) {
				continue
			}
			score := a.Confidence(child, f)
			if score < d.floor {
				d.belowFloor++
				d.logger.Debug("Candidate below confidence floor",
					zap.String("path", f.Path),
					zap.String("kind", a.Kind()),
					zap.Float64("confidence", score))
				continue
			}
			start, end := a.ExtractSpan(child, f)
			*out = append(*out, Candidate{
				Path:       f.Path,
				StartLine:  start,
				EndLine:    end,
				Kind:       a.Kind(),
				Source:     a.Excerpt(child, f),
				Confidence: score,
			})
		}

		d.walk(child, f, out)
	}
}

// ParseFailed reports whether the last Detect call hit a parse error.
func (d *Detector) ParseFailed() bool { return d.parseFailed }

// BelowFloor returns how many candidates the last Detect call dropped
// for scoring under the confidence floor.
func (d *Detector) BelowFloor() int { return d.belowFloor }

// indexImports records imported module paths and names on the file.
func (d *Detector) indexImports(node *sitter.Node, f *File) {
	text := func(n *sitter.Node) string {
		return n.Content(f.Content)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "import_statement":
			// import a.b, c
			for j := 0; j < int(child.NamedChildCount()); j++ {
				name := child.NamedChild(j)
				switch name.Type() {
				case "dotted_name":
					f.Modules[text(name)] = true
				case "aliased_import":
					if mod := name.ChildByFieldName("name"); mod != nil {
						f.Modules[text(mod)] = true
					}
				}
			}

		case "import_from_statement":
			// from a.b import X, Y
			mod := child.ChildByFieldName("module_name")
			if mod == nil {
				continue
			}
			f.Modules[text(mod)] = true
			for j := 0; j < int(child.NamedChildCount()); j++ {
				name := child.NamedChild(j)
				if name.StartByte() == mod.StartByte() {
					continue
				}
				switch name.Type() {
				case "dotted_name", "identifier":
					f.Names[text(name)] = true
				case "aliased_import":
					if orig := name.ChildByFieldName("name"); orig != nil {
						f.Names[text(orig)] = true
					}
				}
			}

		default:
			// Imports can hide inside try/if blocks.
			d.indexImports(child, f)
		}
	}
}

// HasFSMImports is a cheap pre-scan that avoids full parsing for files
// that cannot possibly contain a supported FSM definition.
func HasFSMImports(content []byte) bool {
	s := string(content)
	return strings.Contains(s, "from statemachine import") ||
		strings.Contains(s, "import statemachine") ||
		strings.Contains(s, "from transitions") ||
		strings.Contains(s, "import transitions") ||
		strings.Contains(s, "from automata") ||
		strings.Contains(s, "import automata")
}
