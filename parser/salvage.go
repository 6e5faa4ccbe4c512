package parser

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/dhcgn/chatlog-reconstruct/model"
)

var errNotObject = errors.New("not a JSON object")

func salvage(content []byte) []model.Record {
	raw := strings.Split(string(content), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return salvageLines(lines)
}

// salvageLines accumulates lines until the buffer closes an object. A buffer
// that fails to decode is dropped unless its braces are still open. Whatever
// is still open at the end is scanned again from the next line that starts an
// object, so one unbalanced record does not take the rest of the file with it.
func salvageLines(lines []string) []model.Record {
	var (
		records []model.Record
		buf     strings.Builder
		scan    scanner
		first   = -1
	)

	reset := func() {
		buf.Reset()
		scan = scanner{}
		first = -1
	}

	for i, line := range lines {
		if first < 0 {
			first = i
		}
		buf.WriteString(line)
		scan.feed(line)

		if !strings.HasSuffix(line, "}") && !strings.HasSuffix(line, "},") {
			continue
		}

		// objectCandidate adds an opening brace to chunks that lack one.
		chunk := buf.String()
		depth := scan.depth
		if !strings.HasPrefix(strings.TrimLeft(chunk, "[ \t"), "{") {
			depth++
		}
		if depth > 0 {
			continue
		}

		if record, err := decodeObject(objectCandidate(chunk)); err == nil {
			records = append(records, record)
		}
		reset()
	}

	if first < 0 {
		return records
	}

	if record, err := decodeObject(objectCandidate(strings.TrimRight(buf.String(), "],"))); err == nil {
		return append(records, record)
	}
	if restart := nextObjectLine(lines, first+1); restart >= 0 {
		records = append(records, salvageLines(lines[restart:])...)
	}
	return records
}

func objectCandidate(chunk string) string {
	candidate := strings.TrimSuffix(chunk, ",")
	candidate = strings.TrimLeft(candidate, "[ \t")
	if !strings.HasPrefix(candidate, "{") {
		candidate = "{" + candidate
	}
	return candidate
}

func decodeObject(candidate string) (model.Record, error) {
	var record model.Record
	if err := json.Unmarshal([]byte(candidate), &record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errNotObject
	}
	return record, nil
}

func nextObjectLine(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimLeft(lines[i], "["), "{") {
			return i
		}
	}
	return -1
}
