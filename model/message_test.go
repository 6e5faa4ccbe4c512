package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, doc string) Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(doc), &r))
	return r
}

func TestRecordID(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		wantID string
		wantOK bool
	}{
		{name: "string id", doc: `{"ID": "7"}`, wantID: `"7"`, wantOK: true},
		{name: "numeric id", doc: `{"ID": 7}`, wantID: `7`, wantOK: true},
		{name: "large snowflake", doc: `{"ID": 1234567890123456789}`, wantID: `1234567890123456789`, wantOK: true},
		{name: "missing", doc: `{"Contents": "hi"}`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := decode(t, tt.doc).ID()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestRecordAccessors(t *testing.T) {
	r := decode(t, `{"ID": "42", "Timestamp": "2024-01-01 09:00:00", "Contents": "héllo", "Attachments": "a.png"}`)

	assert.Equal(t, "42", r.DisplayID())
	ts, ok := r.Timestamp()
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01 09:00:00", ts)
	assert.Equal(t, "héllo", r.Contents())
	assert.JSONEq(t, `"a.png"`, string(r.Attachments()))

	empty := decode(t, `{"Contents": null}`)
	_, ok = empty.Timestamp()
	assert.False(t, ok)
	assert.Equal(t, "", empty.Contents())
	assert.Nil(t, empty.Attachments())
}
