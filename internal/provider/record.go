package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var errNotObject = errors.New("quote payload is not a JSON object")

// Record is a quote payload as returned by the upstream API. Its fields are
// open-ended; their order follows the upstream body and survives round trips
// through the cache, which is what the CSV column order is derived from.
//
// A Record is treated as immutable once built. With returns a modified copy.
type Record struct {
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{fields: orderedmap.New[string, json.RawMessage]()}
}

// ParseRecord decodes a JSON object keeping field order.
func ParseRecord(b []byte) (Record, error) {
	var r Record
	if err := r.UnmarshalJSON(b); err != nil {
		return Record{}, err
	}
	return r, nil
}

// MustRecord builds a record from alternating key/value pairs. Values are
// JSON-encoded. Intended for tests and fixtures.
func MustRecord(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("provider: MustRecord needs key/value pairs")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("provider: MustRecord key %v is not a string", kv[i]))
		}
		b, err := json.Marshal(kv[i+1])
		if err != nil {
			panic(err)
		}
		r.fields.Set(k, b)
	}
	return r
}

// Len reports the number of fields.
func (r Record) Len() int {
	if r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns field names in order.
func (r Record) Keys() []string {
	out := make([]string, 0, r.Len())
	if r.fields == nil {
		return out
	}
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Raw returns the JSON encoding of a field.
func (r Record) Raw(key string) (json.RawMessage, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// String returns a field decoded as a JSON string. Non-string fields report false.
func (r Record) String(key string) (string, bool) {
	raw, ok := r.Raw(key)
	if !ok {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// With returns a copy of r with key set to the JSON encoding of v. An
// existing key keeps its position; a new key is appended.
func (r Record) With(key string, v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode field %s: %w", key, err)
	}
	out := r.clone()
	out.fields.Set(key, b)
	return out, nil
}

func (r Record) clone() Record {
	out := NewRecord()
	if r.fields == nil {
		return out
	}
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		out.fields.Set(p.Key, p.Value)
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

func (r *Record) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return errNotObject
	}
	m := orderedmap.New[string, json.RawMessage]()
	if err := m.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode quote payload: %w", err)
	}
	r.fields = m
	return nil
}
