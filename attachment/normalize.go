package attachment

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dhcgn/chatlog-reconstruct/model"
)

// referenceKeys are tried in order on attachment objects; the first key that
// is present wins even when its value is empty.
var referenceKeys = []string{"url", "filename", "name"}

// Normalize returns the references held by an attachment field, in order.
// The result never contains empty strings.
func Normalize(raw json.RawMessage) []string {
	field := Classify(raw)
	switch field.Kind {
	case KindList:
		refs := make([]string, 0, len(field.Items))
		for _, item := range field.Items {
			if ref := listReference(item); ref != "" {
				refs = append(refs, ref)
			}
		}
		return refs
	case KindText:
		return splitText(field.Text)
	case KindOther:
		return []string{field.Raw}
	default:
		return nil
	}
}

func listReference(item gjson.Result) string {
	if !item.IsObject() {
		return stringify(item)
	}
	for _, key := range referenceKeys {
		if v := item.Get(key); v.Exists() {
			return stringify(v)
		}
	}
	return ""
}

func stringify(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return strings.TrimSpace(v.Str)
	default:
		return strings.TrimSpace(v.Raw)
	}
}

// splitText splits on the first delimiter present, by priority: comma,
// semicolon, then space. Tabs and newlines are not delimiters.
func splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	switch {
	case strings.Contains(text, ","):
		parts = strings.Split(text, ",")
	case strings.Contains(text, ";"):
		parts = strings.Split(text, ";")
	case strings.Contains(text, " "):
		parts = strings.Split(text, " ")
	default:
		return []string{text}
	}

	refs := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			refs = append(refs, part)
		}
	}
	return refs
}

// Extract returns the references of every record in order, repeats included.
func Extract(records []model.Record) []string {
	var refs []string
	for _, record := range records {
		refs = append(refs, Normalize(record.Attachments())...)
	}
	return refs
}

// Unique drops repeated references, keeping the first occurrence of each.
func Unique(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// ExtractUnique is Extract followed by Unique.
func ExtractUnique(records []model.Record) []string {
	return Unique(Extract(records))
}
