package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/chatlog-reconstruct/stats"
)

func TestRecorder(t *testing.T) {
	r := New()
	for _, evt := range []stats.Event{
		{Type: stats.EventTypeParsed, Source: "a.json", Count: 4},
		{Type: stats.EventTypeCombined, Count: 6},
		{Type: stats.EventTypeReferences, Count: 3},
		{Type: stats.EventTypeDownloaded, Bytes: 10, Duration: time.Second},
		{Type: stats.EventTypeDownloaded, Bytes: 5, Duration: time.Second},
		{Type: stats.EventTypeRejected},
		{Type: stats.EventTypePaused, Duration: 90 * time.Second},
		{Type: stats.EventTypeFiltered},
	} {
		r.Record(evt)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetches.WithLabelValues("downloaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("rejected")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.bytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pauses))
	assert.Equal(t, 90.0, testutil.ToFloat64(r.pausedSecs))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.references))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.records.WithLabelValues("a.json")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.records.WithLabelValues("combined")))
}

func TestWriteFile(t *testing.T) {
	r := New()
	r.Record(stats.Event{Type: stats.EventTypeDownloaded, Bytes: 42})

	path := filepath.Join(t.TempDir(), "chatlog.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `chatlog_fetch_total{outcome="downloaded"} 1`)
	assert.Contains(t, string(data), "chatlog_fetch_bytes_total 42")
}

func TestWriteFileMissingDir(t *testing.T) {
	r := New()
	assert.Error(t, r.WriteFile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
