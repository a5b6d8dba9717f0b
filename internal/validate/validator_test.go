package validate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeChecker installs a shell script standing in for the Graphviz
// compiler: it rejects input without a closing brace and logs every
// invocation so caching behavior is observable.
func writeFakeChecker(t *testing.T, warn bool) (checker, callLog string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake checker requires a Unix shell")
	}

	dir := t.TempDir()
	callLog = filepath.Join(dir, "calls.log")
	checker = filepath.Join(dir, "fake-dot")

	script := `#!/bin/sh
if [ "$1" = "-V" ]; then
    echo "fake-dot version 1.0" >&2
    exit 0
fi
echo call >> "` + callLog + `"
in=$(cat)
case "$in" in
*"}"*) ` + warnLine(warn) + `exit 0 ;;
*) echo "syntax error: missing '}'" >&2; exit 1 ;;
esac
`
	require.NoError(t, os.WriteFile(checker, []byte(script), 0755))
	return checker, callLog
}

func warnLine(warn bool) string {
	if warn {
		return `echo "warning: node shape" >&2; `
	}
	return ""
}

func newFakeValidator(t *testing.T, strict, warn bool) (*Validator, string) {
	t.Helper()
	checker, callLog := writeFakeChecker(t, warn)
	v, err := New(Options{
		Checker:   checker,
		Format:    "png",
		Timeout:   5 * time.Second,
		Strict:    strict,
		CacheSize: 16,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, v.Preflight(context.Background()))
	return v, callLog
}

func countCalls(t *testing.T, callLog string) int {
	t.Helper()
	data, err := os.ReadFile(callLog)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "call")
}

func TestValidate_ValidArtifact(t *testing.T) {
	v, _ := newFakeValidator(t, false, false)

	result := v.Validate(context.Background(), "digraph { A -> B -> C -> A }")
	assert.True(t, result.Valid)
	assert.Empty(t, result.Diagnostic)
	assert.Equal(t, "fake-dot version 1.0", result.CheckerVersion)
	assert.NotEmpty(t, result.Hash)
}

func TestValidate_MissingBraceRejected(t *testing.T) {
	v, _ := newFakeValidator(t, false, false)

	result := v.Validate(context.Background(), "digraph { A -> B")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Diagnostic, "missing '}'")
}

func TestValidate_CacheShortCircuits(t *testing.T) {
	v, callLog := newFakeValidator(t, false, false)
	dot := "digraph { X -> Y }"

	first := v.Validate(context.Background(), dot)
	second := v.Validate(context.Background(), dot)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, countCalls(t, callLog))
	assert.Equal(t, 1, v.CacheLen())
}

func TestValidate_InvalidResultsAlsoCached(t *testing.T) {
	v, callLog := newFakeValidator(t, false, false)
	broken := "digraph { open"

	r1 := v.Validate(context.Background(), broken)
	r2 := v.Validate(context.Background(), broken)

	assert.False(t, r1.Valid)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, countCalls(t, callLog))
}

func TestValidate_StrictTreatsWarningsAsErrors(t *testing.T) {
	lenient, _ := newFakeValidator(t, false, true)
	result := lenient.Validate(context.Background(), "digraph { A }")
	assert.True(t, result.Valid)

	strict, _ := newFakeValidator(t, true, true)
	result = strict.Validate(context.Background(), "digraph { A }")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Diagnostic, "warnings treated as errors")
}

func TestValidate_EmptyArtifactRejectedWithoutChecker(t *testing.T) {
	v, callLog := newFakeValidator(t, false, false)

	result := v.Validate(context.Background(), "   \n ")
	assert.False(t, result.Valid)
	assert.Equal(t, "empty artifact", result.Diagnostic)
	assert.Equal(t, 0, countCalls(t, callLog))
}

func TestPreflight_MissingChecker(t *testing.T) {
	v, err := New(Options{Checker: "definitely-not-a-real-binary"}, nil)
	require.NoError(t, err)
	assert.Error(t, v.Preflight(context.Background()))
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash("digraph { A -> B }")
	b := ContentHash("digraph { A -> B }")
	c := ContentHash("digraph { B -> A }")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
