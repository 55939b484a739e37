package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []line {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		out = append(out, l)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestWriter_AppendAndClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "transcripts"))
	require.NoError(t, err)
	defer w.CloseAll()

	require.NoError(t, w.Append("tab-1", []byte(`{"type":"text_delta","text":"a"}`)))
	require.NoError(t, w.Append("tab-1", []byte(`{"type":"turn_end"}`)))
	require.NoError(t, w.Append("tab-2", []byte(`{"type":"turn_start"}`)))
	w.Close("tab-1")

	lines := readLines(t, filepath.Join(dir, "transcripts", "tab-1.jsonl"))
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"type":"text_delta","text":"a"}`, string(lines[0].Event))
	assert.GreaterOrEqual(t, lines[1].Offset, lines[0].Offset)

	other := readLines(t, filepath.Join(dir, "transcripts", "tab-2.jsonl"))
	require.Len(t, other, 1)
	assert.JSONEq(t, `{"type":"turn_start"}`, string(other[0].Event))
}

func TestWriter_ReopenAfterClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.CloseAll()

	require.NoError(t, w.Append("tab-1", []byte(`{"type":"turn_start"}`)))
	w.Close("tab-1")

	// A new tab reusing the identifier starts a fresh transcript.
	require.NoError(t, w.Append("tab-1", []byte(`{"type":"turn_end"}`)))
	lines := readLines(t, filepath.Join(dir, "tab-1.jsonl"))
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"type":"turn_end"}`, string(lines[0].Event))
}
