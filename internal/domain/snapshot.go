package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecordID is a quote ID on the wire. Remote posts and exports written by
// older clients carry numeric IDs, so it decodes from a JSON number or
// string; null and absent decode to "". It always encodes as a string.
type RecordID string

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = RecordID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a number or string: %w", err)
		}

		*id = RecordID(n.String())
	}

	return nil
}

// snapshotRecord is the persisted shape of a Quote. Field order here is
// the field order on disk.
type snapshotRecord struct {
	ID        RecordID   `json:"id,omitempty"`
	Text      string     `json:"text"`
	Author    string     `json:"author"`
	Category  string     `json:"category"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// EncodeSnapshot serializes quotes as an indented JSON array.
// The output is deterministic for a given slice: fixed field order,
// timestamps normalized to UTC.
func EncodeSnapshot(quotes []Quote) ([]byte, error) {
	records := make([]snapshotRecord, len(quotes))

	for i, q := range quotes {
		rec := snapshotRecord{
			ID:       RecordID(q.ID),
			Text:     q.Text,
			Author:   q.Author,
			Category: q.Category,
		}

		if q.UpdatedAt != nil {
			t := q.UpdatedAt.UTC()
			rec.UpdatedAt = &t
		}

		records[i] = rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, NewFormatError("encoding quotes", err)
	}

	return data, nil
}

// DecodeSnapshot parses the output of EncodeSnapshot, or any JSON array of
// objects with non-empty text, author and category. A single bad entry
// rejects the whole payload.
func DecodeSnapshot(data []byte) ([]Quote, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, NewFormatError("expected a JSON array of quotes", nil)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, NewFormatError("malformed JSON", err)
	}

	quotes := make([]Quote, 0, len(raw))

	for i, entry := range raw {
		entry = bytes.TrimSpace(entry)
		if len(entry) == 0 || entry[0] != '{' {
			return nil, NewEntryFormatError(i, "not an object")
		}

		var rec snapshotRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			return nil, NewEntryFormatError(i, err.Error())
		}

		q := Quote{
			ID:        string(rec.ID),
			Text:      rec.Text,
			Author:    rec.Author,
			Category:  rec.Category,
			UpdatedAt: rec.UpdatedAt,
		}

		if err := q.Validate(); err != nil {
			return nil, NewEntryFormatError(i, err.Error())
		}

		quotes = append(quotes, q)
	}

	return quotes, nil
}
