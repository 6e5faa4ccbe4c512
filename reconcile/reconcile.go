// Package reconcile merges message logs into one chronologically ordered,
// deduplicated conversation.
package reconcile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dhcgn/chatlog-reconstruct/model"
	"github.com/dhcgn/chatlog-reconstruct/parser"
)

// Reconcile concatenates the sequences, keeps the last occurrence of every ID
// at the position where that ID was first seen, and sorts the result by
// timestamp. Records without an ID are never deduplicated. Ties keep their
// first-seen order.
func Reconcile(a, b []model.Record, logger *slog.Logger) []model.Record {
	merged := make([]model.Record, 0, len(a)+len(b))
	index := make(map[string]int, len(a)+len(b))

	for _, seq := range [][]model.Record{a, b} {
		for _, record := range seq {
			id, ok := record.ID()
			if !ok {
				merged = append(merged, record)
				continue
			}
			if pos, seen := index[id]; seen {
				merged[pos] = record
				continue
			}
			index[id] = len(merged)
			merged = append(merged, record)
		}
	}

	type keyed struct {
		at     time.Time
		record model.Record
	}
	sortable := make([]keyed, len(merged))
	for i, record := range merged {
		sortable[i] = keyed{at: sortKey(record, logger), record: record}
	}
	slices.SortStableFunc(sortable, func(x, y keyed) int {
		return x.at.Compare(y.at)
	})

	ordered := make([]model.Record, len(sortable))
	for i, k := range sortable {
		ordered[i] = k.record
	}
	return ordered
}

func sortKey(record model.Record, logger *slog.Logger) time.Time {
	ts, ok := record.Timestamp()
	if !ok {
		return time.Time{}
	}
	return ResolveTimestamp(ts, logger)
}

// Save writes records as an indented JSON array. Non-ASCII text and HTML
// characters are written as is.
func Save(path string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".messages-*.json")
	if err != nil {
		return fmt.Errorf("create combined file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode combined records: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write combined file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod combined file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close combined file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename combined file: %w", err)
	}
	return nil
}

// Summary reports how many records each stage saw.
type Summary struct {
	First    int
	Second   int
	Combined int
	Saved    bool
}

// Combine parses both message logs, reconciles them and, when output is not
// empty, saves the result. A failed save is logged; the reconciled records are
// returned either way.
func Combine(first, second, output string, logger *slog.Logger) ([]model.Record, Summary) {
	a := parser.ParseFile(first, logger)
	if logger != nil {
		logger.Info("read message log", "path", first, "messages", len(a))
	}
	b := parser.ParseFile(second, logger)
	if logger != nil {
		logger.Info("read message log", "path", second, "messages", len(b))
	}

	combined := Reconcile(a, b, logger)
	summary := Summary{First: len(a), Second: len(b), Combined: len(combined)}
	if logger != nil {
		logger.Info("combined messages", "unique", len(combined))
	}

	if output == "" {
		return combined, summary
	}
	if err := Save(output, combined); err != nil {
		if logger != nil {
			logger.Error("save combined messages", "path", output, "err", err)
		}
		return combined, summary
	}
	summary.Saved = true
	if logger != nil {
		logger.Info("combined messages saved", "path", output)
	}
	return combined, summary
}
