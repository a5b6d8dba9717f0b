package detect

import (
	"fmt"
	"strings"
)

// BeginMarker returns the opening artifact delimiter for a salt. The
// salt makes the pair unforgeable by candidate output: a harness prints
// exactly one such pair, so a missing end marker unambiguously signals
// truncation or a crash mid-print.
func BeginMarker(salt string) string {
	return fmt.Sprintf("===ARTIFACT_BEGIN_%s===", salt)
}

// EndMarker returns the closing artifact delimiter for a salt.
func EndMarker(salt string) string {
	return fmt.Sprintf("===ARTIFACT_END_%s===", salt)
}

// indentBlock indents every line of a Python excerpt so it nests inside
// the harness try block.
func indentBlock(code string, spaces int) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// joinExcerpt combines import lines and the definition body into one
// self-contained excerpt.
func joinExcerpt(imports []string, body string) string {
	if len(imports) == 0 {
		return body
	}
	return strings.Join(imports, "\n") + "\n\n" + body
}
