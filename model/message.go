package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Field names used by the message log exports.
const (
	FieldID          = "ID"
	FieldTimestamp   = "Timestamp"
	FieldContents    = "Contents"
	FieldAttachments = "Attachments"
)

// Record is a single message entry parsed from a message log. Values are kept
// as raw JSON so numeric identifiers survive a round trip without losing
// precision. A Record is never modified after it has been parsed.
type Record map[string]json.RawMessage

// ID returns the deduplication key of the record: the compact JSON text of its
// ID field. A string ID "7" and a numeric ID 7 are different keys.
func (r Record) ID() (string, bool) {
	raw, ok := r[FieldID]
	if !ok {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw)), true
	}
	return buf.String(), true
}

// DisplayID returns the ID without JSON quoting, for logs and previews.
func (r Record) DisplayID() string {
	raw, ok := r[FieldID]
	if !ok {
		return ""
	}
	return gjson.ParseBytes(raw).String()
}

// Timestamp returns the record's timestamp text. Non-string values are
// returned as their JSON text so that the resolver can report them.
func (r Record) Timestamp() (string, bool) {
	raw, ok := r[FieldTimestamp]
	if !ok {
		return "", false
	}
	return text(raw), true
}

// Contents returns the free text of the message, if any.
func (r Record) Contents() string {
	raw, ok := r[FieldContents]
	if !ok {
		return ""
	}
	return text(raw)
}

// Attachments returns the raw attachment field, or nil when absent.
func (r Record) Attachments() json.RawMessage {
	return r[FieldAttachments]
}

func text(raw json.RawMessage) string {
	res := gjson.ParseBytes(raw)
	if res.Type == gjson.String {
		return res.Str
	}
	if res.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(res.Raw)
}
