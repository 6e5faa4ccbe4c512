// Package attachment turns the attachment field of a message record into a
// flat list of references, whatever shape the exporter wrote it in.
package attachment

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies the shape of an attachment field.
type Kind int

const (
	// KindEmpty covers absent, null, blank and falsy fields.
	KindEmpty Kind = iota
	// KindList is a JSON array of attachment objects or plain values.
	KindList
	// KindText is a single string, possibly holding several delimited items.
	KindText
	// KindOther is any other JSON value.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindList:
		return "list"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

// Field is an attachment field classified once by Classify.
type Field struct {
	Kind  Kind
	Text  string
	Items []gjson.Result
	Raw   string
}

// Classify inspects raw and returns its tagged form.
func Classify(raw json.RawMessage) Field {
	if len(raw) == 0 {
		return Field{Kind: KindEmpty}
	}

	res := gjson.ParseBytes(raw)
	switch {
	case res.Type == gjson.Null, res.Type == gjson.False:
		return Field{Kind: KindEmpty}
	case res.Type == gjson.Number && res.Num == 0:
		return Field{Kind: KindEmpty}
	case res.Type == gjson.String:
		text := strings.TrimSpace(res.Str)
		if text == "" {
			return Field{Kind: KindEmpty}
		}
		return Field{Kind: KindText, Text: text}
	case res.IsArray():
		items := res.Array()
		if len(items) == 0 {
			return Field{Kind: KindEmpty}
		}
		return Field{Kind: KindList, Items: items}
	case res.IsObject() && len(res.Map()) == 0:
		return Field{Kind: KindEmpty}
	default:
		return Field{Kind: KindOther, Raw: strings.TrimSpace(res.Raw)}
	}
}
