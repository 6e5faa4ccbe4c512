// Package manifest appends one JSON line per fetch outcome. The file is a
// report of what a run did; nothing reads it back to resume a batch.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhcgn/chatlog-reconstruct/fetch"
)

type Entry struct {
	RunID      string        `json:"run_id"`
	Time       time.Time     `json:"time"`
	Counter    int           `json:"counter"`
	Reference  string        `json:"reference"`
	Outcome    fetch.Outcome `json:"outcome"`
	Path       string        `json:"path,omitempty"`
	Bytes      int64         `json:"bytes,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// NewEntry converts a fetch result into a manifest line.
func NewEntry(runID string, counter int, res fetch.Result) Entry {
	entry := Entry{
		RunID:      runID,
		Time:       time.Now().UTC(),
		Counter:    counter,
		Reference:  res.Reference,
		Outcome:    res.Outcome,
		Path:       res.Path,
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
		var statusErr *fetch.StatusError
		if errors.As(res.Err, &statusErr) {
			entry.StatusCode = statusErr.StatusCode
		}
	}
	return entry
}

type Snapshot struct {
	Written   int
	ByOutcome map[fetch.Outcome]int
}

// Writer appends entries to a JSONL file. With persist disabled it only
// counts, which is what dry runs use.
type Writer struct {
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File

	mu        sync.Mutex
	written   int
	byOutcome map[fetch.Outcome]int
}

func NewWriter(path string, persist bool) (*Writer, error) {
	w := &Writer{path: path, persist: persist, byOutcome: make(map[fetch.Outcome]int)}
	if !persist {
		return w, nil
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("manifest path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open manifest for append: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriterSize(file, 64*1024)
	return w, nil
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Record(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.written++
	w.byOutcome[entry.Outcome]++

	if !w.persist {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("write manifest entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *Writer) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	byOutcome := make(map[fetch.Outcome]int, len(w.byOutcome))
	for k, v := range w.byOutcome {
		byOutcome[k] = v
	}
	return Snapshot{Written: w.written, ByOutcome: byOutcome}
}

// Flush writes any buffered data to the underlying file.
func (w *Writer) Flush() error {
	if !w.persist || w.writer == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	return nil
}

// Close flushes and closes the manifest file.
func (w *Writer) Close() error {
	if !w.persist || w.file == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if err := w.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush manifest: %w", err)
	}
	if err := w.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync manifest: %w", err)
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close manifest: %w", err)
	}
	w.file = nil
	return firstErr
}
