// Package profile assembles the device profile record submitted during attestation and applies
// the field obfuscation and canonical digest rules the attestation backend expects.
package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is a key/value mapping that remembers insertion order.
// Values are strings, integers, floats or nested *Record values.
// The zero value is ready to use.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: map[string]any{}}
}

// Set stores value under key. Updating an existing key keeps its original position.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of entries.
func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := NewRecord()
	for _, k := range r.keys {
		v := r.values[k]
		if nested, ok := v.(*Record); ok {
			v = nested.Clone()
		}
		out.Set(k, v)
	}
	return out
}

// MarshalJSON encodes the record as a compact JSON object in insertion order.
// HTML characters are not escaped and non-ASCII text is emitted as UTF-8.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(&buf, k); err != nil {
			return nil, fmt.Errorf("failed to encode key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := encodeValue(&buf, r.values[k]); err != nil {
			return nil, fmt.Errorf("failed to encode value of %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	if nested, ok := v.(*Record); ok {
		b, err := nested.MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
