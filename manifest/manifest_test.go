package manifest

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/chatlog-reconstruct/fetch"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestWriterAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifest.jsonl")
	w, err := NewWriter(path, true)
	require.NoError(t, err)

	require.NoError(t, w.Record(NewEntry("run-1", 1, fetch.Result{
		Reference: "https://cdn.example.com/a.png",
		Path:      "out/download/a.png",
		Outcome:   fetch.OutcomeDownloaded,
		Bytes:     12,
		Duration:  1500 * time.Millisecond,
	})))
	require.NoError(t, w.Record(NewEntry("run-1", 2, fetch.Result{
		Reference: "https://cdn.example.com/b.png",
		Outcome:   fetch.OutcomeRejected,
		Err:       &fetch.StatusError{StatusCode: 403, Status: "403 Forbidden"},
	})))
	require.NoError(t, w.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, fetch.OutcomeDownloaded, entries[0].Outcome)
	assert.Equal(t, int64(12), entries[0].Bytes)
	assert.Equal(t, int64(1500), entries[0].DurationMS)
	assert.Equal(t, 2, entries[1].Counter)
	assert.Equal(t, 403, entries[1].StatusCode)
	assert.Equal(t, "http status 403 Forbidden", entries[1].Error)
	assert.Empty(t, entries[1].Path)

	snap := w.Snapshot()
	assert.Equal(t, 2, snap.Written)
	assert.Equal(t, 1, snap.ByOutcome[fetch.OutcomeRejected])
}

func TestWriterAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	for _, run := range []string{"a", "b"} {
		w, err := NewWriter(path, true)
		require.NoError(t, err)
		require.NoError(t, w.Record(Entry{RunID: run, Outcome: fetch.OutcomeSkipped}))
		require.NoError(t, w.Close())
	}

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].RunID)
	assert.Equal(t, "b", entries[1].RunID)
}

func TestWriterWithoutPersist(t *testing.T) {
	w, err := NewWriter("", false)
	require.NoError(t, err)
	require.NoError(t, w.Record(Entry{Outcome: fetch.OutcomeFailed, Error: "connection reset"}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, w.Snapshot().Written)
}

func TestNewWriterEmptyPath(t *testing.T) {
	_, err := NewWriter(" ", true)
	assert.Error(t, err)
}
