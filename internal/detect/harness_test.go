package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHarness_AllAdapters(t *testing.T) {
	excerpt := "from statemachine import StateMachine\n\nclass M(StateMachine):\n    pass"
	salt := "deadbeef"

	for _, a := range DefaultRegistry().Adapters() {
		t.Run(a.Kind(), func(t *testing.T) {
			harness := a.BuildHarness(excerpt, salt)

			assert.Contains(t, harness, BeginMarker(salt))
			assert.Contains(t, harness, EndMarker(salt))
			// Excerpt is nested inside the try block.
			assert.Contains(t, harness, "    class M(StateMachine):")
			// Failures must exit non-zero with a stderr diagnostic.
			assert.Contains(t, harness, "sys.exit(1)")
			assert.Contains(t, harness, "file=sys.stderr")
			// The artifact print happens before a clean exit.
			assert.Contains(t, harness, "sys.exit(0)")
		})
	}
}

func TestMarkers_SaltDistinguishes(t *testing.T) {
	assert.NotEqual(t, BeginMarker("a"), BeginMarker("b"))
	assert.NotEqual(t, BeginMarker("a"), EndMarker("a"))
	assert.Equal(t, "===ARTIFACT_BEGIN_s1===", BeginMarker("s1"))
	assert.Equal(t, "===ARTIFACT_END_s1===", EndMarker("s1"))
}

func TestIndentBlock(t *testing.T) {
	in := "a = 1\n\nif a:\n    b = 2"
	out := indentBlock(in, 4)
	assert.Equal(t, "    a = 1\n\n    if a:\n        b = 2", out)
}

func TestJoinExcerpt(t *testing.T) {
	assert.Equal(t, "body", joinExcerpt(nil, "body"))
	got := joinExcerpt([]string{"import x", "import y"}, "body")
	assert.True(t, strings.HasPrefix(got, "import x\nimport y\n\n"))
}
