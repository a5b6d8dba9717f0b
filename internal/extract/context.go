// Package extract slices bounded, self-contained input excerpts and
// context snippets for recognized candidates. Everything here is pure:
// no I/O, no execution.
package extract

import (
	"strings"

	"dotminer/internal/detect"
)

const truncationMark = "# ..."

// Input returns the candidate excerpt that forms the input side of a
// persisted pair, truncated to maxBytes. Truncation always lands on a
// line boundary and never inside an open bracket, so the excerpt stays
// syntactically closed.
func Input(c detect.Candidate, maxBytes int) string {
	return Truncate(c.Source, maxBytes)
}

// Snippet returns the auxiliary context for a candidate: the
// documentation comments immediately preceding its definition, truncated
// to maxBytes. Empty when the definition carries no comment block.
func Snippet(c detect.Candidate, content []byte, maxBytes int) string {
	return Truncate(leadingComments(c, content), maxBytes)
}

// leadingComments collects the contiguous '#' comment block directly
// above the candidate's start line.
func leadingComments(c detect.Candidate, content []byte) string {
	lines := strings.Split(string(content), "\n")
	if c.StartLine-1 > len(lines) {
		return ""
	}

	var docs []string
	for i := c.StartLine - 2; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		docs = append([]string{lines[i]}, docs...)
	}
	return strings.Join(docs, "\n")
}

// Truncate cuts text to maxBytes at a line boundary, then keeps
// dropping trailing lines while the cut leaves an unbalanced bracket.
// A truncated snippet ends with a comment marker.
func Truncate(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}

	budget := maxBytes - len(truncationMark) - 1
	if budget < 0 {
		budget = 0
	}
	cut := text[:budget]
	if idx := strings.LastIndexByte(cut, '\n'); idx >= 0 {
		cut = cut[:idx]
	}

	lines := strings.Split(cut, "\n")
	for len(lines) > 0 && bracketDepth(strings.Join(lines, "\n")) > 0 {
		lines = lines[:len(lines)-1]
	}
	cut = strings.Join(lines, "\n")

	if cut == "" {
		return truncationMark
	}
	return cut + "\n" + truncationMark
}

// bracketDepth returns open minus closed brackets, ignoring bracket
// characters inside string literals and comments.
func bracketDepth(text string) int {
	depth := 0
	var quote byte
	inComment := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inComment {
			if ch == '\n' {
				inComment = false
			}
			continue
		}
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '#':
			inComment = true
		case '\'', '"':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	return depth
}
