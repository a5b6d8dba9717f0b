package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dotminer/internal/detect"
)

const fileWithDocs = `from statemachine import StateMachine, State

# A three-phase traffic light.
# Cycles green -> yellow -> red.
class TrafficLight(StateMachine):
    green = State(initial=True)
    yellow = State()
    red = State()
`

func TestInput_ReturnsExcerpt(t *testing.T) {
	c := detect.Candidate{
		Path:   "traffic.py",
		Source: "class TrafficLight(StateMachine):\n    green = State(initial=True)",
	}
	assert.Equal(t, c.Source, Input(c, 2000))
}

func TestInput_TruncatedToBudget(t *testing.T) {
	c := detect.Candidate{
		Path:   "big.py",
		Source: strings.Repeat("x = 1\n", 1000),
	}
	got := Input(c, 200)
	assert.LessOrEqual(t, len(got), 200)
	assert.True(t, strings.HasSuffix(got, "# ..."))
}

func TestSnippet_LeadingComments(t *testing.T) {
	c := detect.Candidate{
		Path:      "traffic.py",
		StartLine: 5,
		EndLine:   8,
		Kind:      "python-statemachine",
		Source:    "class TrafficLight(StateMachine):\n    green = State(initial=True)",
	}

	snippet := Snippet(c, []byte(fileWithDocs), 2000)
	assert.Equal(t, "# A three-phase traffic light.\n# Cycles green -> yellow -> red.", snippet)
}

func TestSnippet_NoCommentsEmpty(t *testing.T) {
	c := detect.Candidate{
		Path:      "traffic.py",
		StartLine: 1,
		Source:    "from statemachine import StateMachine",
	}
	assert.Empty(t, Snippet(c, []byte(fileWithDocs), 2000))
}

func TestTruncate_UnderBudgetUntouched(t *testing.T) {
	text := "digraph {\n  A -> B\n}"
	assert.Equal(t, text, Truncate(text, 100))
}

func TestTruncate_CutsAtLineBoundary(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("x = 1  # filler line to push past the byte budget\n")
	}
	text := b.String()

	out := Truncate(text, 500)
	require.Less(t, len(out), 520)
	assert.True(t, strings.HasSuffix(out, "# ..."))
	// No partial line before the marker.
	lines := strings.Split(out, "\n")
	for _, line := range lines[:len(lines)-1] {
		assert.True(t, line == "" || strings.HasSuffix(line, "budget") || line == "# ...",
			"unexpected partial line: %q", line)
	}
}

func TestTruncate_NeverCutsInsideOpenBracket(t *testing.T) {
	text := "states = [\n" + strings.Repeat("    'one', 'two', 'three',\n", 50) + "]\n"
	out := Truncate(text, 300)

	// The open bracket line must go if its closer didn't fit.
	assert.NotContains(t, out, "states = [")
	assert.True(t, strings.HasSuffix(out, "# ..."))
}

func TestTruncate_IgnoresBracketsInStringsAndComments(t *testing.T) {
	text := "a = \"(\"  # an open paren ( in a comment\nb = 2\n" +
		strings.Repeat("c = 3\n", 200)
	out := Truncate(text, 100)
	assert.Contains(t, out, `a = "("`)
	assert.Contains(t, out, "b = 2")
}
