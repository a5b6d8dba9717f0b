package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeValidateFixtures(t *testing.T) (dotPath, brokenPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake checker requires a Unix shell")
	}

	dir := t.TempDir()

	checker := filepath.Join(dir, "fake-dot")
	script := `#!/bin/sh
if [ "$1" = "-V" ]; then
    echo "fake-dot version 1.0" >&2
    exit 0
fi
in=$(cat)
case "$in" in
*"}"*) exit 0 ;;
*) echo "syntax error: missing '}'" >&2; exit 1 ;;
esac
`
	require.NoError(t, os.WriteFile(checker, []byte(script), 0755))

	cfg := filepath.Join(dir, "dotminer.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("validate:\n  checker: "+checker+"\n"), 0644))

	prev := cfgPath
	cfgPath = cfg
	t.Cleanup(func() { cfgPath = prev })

	dotPath = filepath.Join(dir, "ok.dot")
	require.NoError(t, os.WriteFile(dotPath, []byte("digraph { A -> B }"), 0644))
	brokenPath = filepath.Join(dir, "broken.dot")
	require.NoError(t, os.WriteFile(brokenPath, []byte("digraph { A -> B"), 0644))
	return dotPath, brokenPath
}

// An invalid artifact must surface as a returned error so Execute still
// runs PersistentPostRun before the process exits non-zero.
func TestRunValidate_InvalidReturnsError(t *testing.T) {
	_, broken := writeValidateFixtures(t)
	validateCmd.SetContext(context.Background())

	err := runValidate(validateCmd, []string{broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid DOT")
	assert.Contains(t, err.Error(), "missing '}'")
}

func TestRunValidate_ValidSucceeds(t *testing.T) {
	ok, _ := writeValidateFixtures(t)
	validateCmd.SetContext(context.Background())

	assert.NoError(t, runValidate(validateCmd, []string{ok}))
}
