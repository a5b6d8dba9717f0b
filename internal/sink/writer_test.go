package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSinkLines(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestWriter_AppendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pairs.jsonl")

	w, err := OpenWriter(path)
	require.NoError(t, err)

	first := validRecord()
	second := validRecord()
	second.ID = NewID("fsm", "digraph { other }")
	second.OutputDOT = "digraph { other }"

	require.NoError(t, w.Append(first))
	require.NoError(t, w.Append(second))
	require.NoError(t, w.Close())

	got := readSinkLines(t, path)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])
}

func TestWriter_AppendOnlyAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")

	w, err := OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(validRecord()))
	require.NoError(t, w.Close())

	// Reopening must never rewrite existing lines.
	w, err = OpenWriter(path)
	require.NoError(t, err)
	rec := validRecord()
	rec.ID = NewID("fsm", "digraph { later }")
	rec.OutputDOT = "digraph { later }"
	require.NoError(t, w.Append(rec))
	require.NoError(t, w.Close())

	got := readSinkLines(t, path)
	require.Len(t, got, 2)
	assert.Equal(t, validRecord().ID, got[0].ID)
	assert.Equal(t, rec.ID, got[1].ID)
}

func TestWriter_RejectsInvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")

	w, err := OpenWriter(path)
	require.NoError(t, err)
	defer w.Close()

	bad := validRecord()
	bad.OutputDOT = ""
	assert.Error(t, w.Append(bad))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
