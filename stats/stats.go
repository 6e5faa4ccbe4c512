package stats

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

type Stage string

const (
	StageParse     Stage = "parse"
	StageReconcile Stage = "reconcile"
	StageFetch     Stage = "fetch"
)

type EventType string

const (
	EventTypeParsed     EventType = "parsed"
	EventTypeCombined   EventType = "combined"
	EventTypeSaved      EventType = "saved"
	EventTypeReferences EventType = "references"
	EventTypeFiltered   EventType = "filtered"
	EventTypeDownloaded EventType = "downloaded"
	EventTypeSkipped    EventType = "skipped"
	EventTypeRejected   EventType = "rejected"
	EventTypeFailed     EventType = "failed"
	EventTypeDryRun     EventType = "dry_run"
	EventTypePaused     EventType = "paused"
	EventTypeError      EventType = "error"
)

// Event is emitted by the runner as the pipeline progresses. Count carries
// totals for stage events; Counter is the 1-based position of a reference in
// the download batch.
type Event struct {
	Stage     Stage
	Type      EventType
	Source    string
	Reference string
	Path      string
	Count     int
	Counter   int
	Bytes     int64
	Duration  time.Duration
	Err       error
	Detail    string
}

type Summary struct {
	Parsed     map[string]int
	Combined   int
	References int
	Filtered   int
	Downloaded int
	Skipped    int
	Rejected   int
	Failed     int
	DryRun     int
	Pauses     int
	Bytes      int64
	Errors     int
	LastError  error
}

// Processed counts references the fetch loop handled, whatever the outcome.
func (s Summary) Processed() int {
	return s.Downloaded + s.Skipped + s.Rejected + s.Failed + s.DryRun
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"combined", s.Combined,
		"references", s.References,
		"filtered", s.Filtered,
		"downloaded", s.Downloaded,
		"skipped", s.Skipped,
		"rejected", s.Rejected,
		"failed", s.Failed,
		"dryRun", s.DryRun,
		"pauses", s.Pauses,
		"bytes", s.Bytes,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector folds events into a Summary.
type Collector struct {
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{summary: Summary{Parsed: make(map[string]int)}}
}

func (c *Collector) Record(evt Event) {
	switch evt.Type {
	case EventTypeParsed:
		c.summary.Parsed[evt.Source] = evt.Count
	case EventTypeCombined:
		c.summary.Combined = evt.Count
	case EventTypeReferences:
		c.summary.References = evt.Count
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeDownloaded:
		c.summary.Downloaded++
		c.summary.Bytes += evt.Bytes
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeRejected:
		c.summary.Rejected++
	case EventTypeFailed:
		c.summary.Failed++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	case EventTypeDryRun:
		c.summary.DryRun++
	case EventTypePaused:
		c.summary.Pauses++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	summary := c.summary
	summary.Parsed = make(map[string]int, len(c.summary.Parsed))
	for k, v := range c.summary.Parsed {
		summary.Parsed[k] = v
	}
	return summary
}

// EventStream delivers pipeline events to subscribers in emission order.
type EventStream interface {
	Subscribe(name string, fn func(Event))
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.Subscribe("stats-reporter", reporter.collector.Record)
	return reporter
}

// Log writes the summary collected so far.
func (r *Reporter) Log() {
	if r.logger == nil {
		return
	}
	attrs := append(r.collector.Snapshot().LogAttrs(), "duration", time.Since(r.started))
	r.logger.Info("stats summary", attrs...)
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Printf("%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}

type Pair struct {
	Key   string
	Value int
}

// Top returns up to limit entries of m ordered by descending count, then key.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}
