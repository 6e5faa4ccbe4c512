// Package parser reads message logs whose JSON may be incomplete: missing
// outer brackets, dangling commas, or records broken across lines.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dhcgn/chatlog-reconstruct/model"
)

// Mode names the strategy that produced a Result.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRepair  Mode = "repair"
	ModeSalvage Mode = "salvage"
	ModeEmpty   Mode = "empty"
)

// Result carries the recovered records and the strategy that recovered them.
type Result struct {
	Records []model.Record
	Mode    Mode
}

var utf8BOM = []byte("\xef\xbb\xbf")

// Parse recovers records from content. It never fails: content that cannot be
// read by any strategy yields an empty Result with ModeEmpty.
func Parse(content []byte) Result {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(content, utf8BOM))
	if len(trimmed) == 0 {
		return Result{Mode: ModeEmpty}
	}

	if bytes.HasPrefix(trimmed, []byte("[")) && bytes.HasSuffix(trimmed, []byte("]")) {
		if records, err := decodeArray(trimmed); err == nil {
			return Result{Records: records, Mode: ModeStrict}
		}
	}

	if records, err := decodeArray(repair(trimmed)); err == nil {
		return Result{Records: records, Mode: ModeRepair}
	}

	records := salvage(trimmed)
	if len(records) == 0 {
		return Result{Mode: ModeEmpty}
	}
	return Result{Records: records, Mode: ModeSalvage}
}

// ParseFile reads path and parses it. Read failures are logged and produce an
// empty slice.
func ParseFile(path string, logger *slog.Logger) []model.Record {
	content, err := os.ReadFile(path)
	if err != nil {
		if logger != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Error("message log not found", "path", path)
			} else {
				logger.Error("read message log", "path", path, "err", err)
			}
		}
		return nil
	}

	if !utf8.Valid(content) {
		if logger != nil {
			logger.Warn("message log is not valid UTF-8, replacing invalid bytes", "path", path)
		}
		content = bytes.ToValidUTF8(content, []byte("�"))
	}

	res := Parse(content)
	if logger != nil {
		if res.Mode == ModeEmpty && len(bytes.TrimSpace(content)) > 0 {
			logger.Warn("no records recovered from message log", "path", path, "size", len(content))
		} else {
			logger.Debug("parsed message log", "path", path, "mode", res.Mode, "records", len(res.Records))
		}
	}
	return res.Records
}

func decodeArray(content []byte) ([]model.Record, error) {
	var raw []model.Record
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	records := make([]model.Record, 0, len(raw))
	for _, r := range raw {
		if r == nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func repair(content []byte) []byte {
	s := string(content)
	if !strings.HasPrefix(s, "[") {
		s = "[" + s
	}
	if !strings.HasSuffix(s, "]") {
		s = strings.TrimRight(s, ",") + "]"
	}
	return []byte(stripDanglingCommas(s))
}
