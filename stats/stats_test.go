package stats

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stream struct {
	subs []func(Event)
}

func (s *stream) Subscribe(_ string, fn func(Event)) {
	s.subs = append(s.subs, fn)
}

func (s *stream) emit(evt Event) {
	for _, fn := range s.subs {
		fn(evt)
	}
}

func TestReporterSummary(t *testing.T) {
	var logs bytes.Buffer
	s := &stream{}
	r := NewReporter(s, slog.New(slog.NewTextHandler(&logs, nil)))

	boom := errors.New("boom")
	for _, evt := range []Event{
		{Stage: StageParse, Type: EventTypeParsed, Source: "a.json", Count: 3},
		{Stage: StageParse, Type: EventTypeParsed, Source: "b.json", Count: 4},
		{Stage: StageReconcile, Type: EventTypeCombined, Count: 5},
		{Stage: StageFetch, Type: EventTypeReferences, Count: 4},
		{Stage: StageFetch, Type: EventTypeDownloaded, Bytes: 100},
		{Stage: StageFetch, Type: EventTypeDownloaded, Bytes: 50},
		{Stage: StageFetch, Type: EventTypeRejected},
		{Stage: StageFetch, Type: EventTypeFailed, Err: boom},
		{Stage: StageFetch, Type: EventTypePaused},
	} {
		s.emit(evt)
	}

	got := r.Summary()
	assert.Equal(t, map[string]int{"a.json": 3, "b.json": 4}, got.Parsed)
	assert.Equal(t, 5, got.Combined)
	assert.Equal(t, 4, got.References)
	assert.Equal(t, 2, got.Downloaded)
	assert.Equal(t, int64(150), got.Bytes)
	assert.Equal(t, 1, got.Rejected)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.Pauses)
	assert.Equal(t, 4, got.Processed())
	assert.ErrorIs(t, got.LastError, boom)

	r.Log()
	assert.Contains(t, logs.String(), "stats summary")
	assert.Contains(t, logs.String(), "downloaded=2")
	assert.Contains(t, logs.String(), "lastError=boom")
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.Record(Event{Type: EventTypeParsed, Source: "a", Count: 1})

	snap := c.Snapshot()
	snap.Parsed["a"] = 99
	assert.Equal(t, 1, c.Snapshot().Parsed["a"])
}

func TestTop(t *testing.T) {
	m := map[string]int{"png": 3, "jpg": 5, "gif": 3, "mp4": 1}

	assert.Equal(t, []Pair{{"jpg", 5}, {"gif", 3}, {"png", 3}}, Top(m, 3))
	assert.Len(t, Top(m, 10), 4)
	assert.Empty(t, Top(m, 0))
}
