// Package export renders quote records as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"quoteexport/internal/provider"
)

// ContentType is the exact media type sent with CSV bodies.
const ContentType = "text/csv"

// Header is the union of record fields in order of first appearance.
func Header(records []provider.Record) []string {
	seen := make(map[string]struct{})
	var header []string
	for _, r := range records {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			header = append(header, k)
		}
	}
	return header
}

// WriteCSV writes a header row followed by one row per record. A record
// missing a column gets an empty cell. No records writes nothing.
func WriteCSV(w io.Writer, records []provider.Record) error {
	header := Header(records)
	if len(header) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(header))
	for i, r := range records {
		for j, k := range header {
			raw, ok := r.Raw(k)
			if !ok {
				row[j] = ""
				continue
			}
			row[j] = Cell(raw)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cell renders one JSON value: strings unquoted, null empty, numbers and
// booleans verbatim, objects and arrays as compact JSON.
func Cell(raw json.RawMessage) string {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	case 'n':
		if string(v) == "null" {
			return ""
		}
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err == nil {
			return buf.String()
		}
	}
	return string(v)
}

// Bytes renders records to a byte slice.
func Bytes(records []provider.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
