package attachment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// DisplayName shortens an http(s) reference to its final path segment without
// the query string. Other references are returned unchanged. It is meant for
// output shown to people; downloads need the full reference.
func DisplayName(ref string) string {
	if !strings.HasPrefix(ref, "http") {
		return ref
	}
	name := ref[strings.LastIndex(ref, "/")+1:]
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	return name
}

// Describe renders an attachment field for the timeline preview, joining
// entries with "; ".
func Describe(raw json.RawMessage) string {
	field := Classify(raw)
	switch field.Kind {
	case KindList:
		parts := make([]string, 0, len(field.Items))
		for _, item := range field.Items {
			parts = append(parts, describeItem(item))
		}
		return strings.Join(parts, "; ")
	case KindText:
		refs := splitText(field.Text)
		for i, ref := range refs {
			refs[i] = DisplayName(ref)
		}
		return strings.Join(refs, "; ")
	case KindOther:
		return field.Raw
	default:
		return ""
	}
}

func describeItem(item gjson.Result) string {
	if !item.IsObject() {
		return stringify(item)
	}

	name := "Unknown file"
	if v := item.Get("filename"); v.Exists() {
		name = stringify(v)
	} else if v := item.Get("name"); v.Exists() {
		name = stringify(v)
	}

	size := stringify(item.Get("size"))
	if size == "" || size == "0" || size == "false" {
		return name
	}
	return fmt.Sprintf("%s (%s bytes)", name, size)
}
