package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an ordered map produced by object nodes. Keys holds the schema's
// declaration order; Values the resolved entries. Plain map results would
// lose the ordering guarantee on the host side.
type Record struct {
	Keys   []string
	Values map[string]interface{}
}

// NewRecord allocates a record sized for n entries.
func NewRecord(n int) *Record {
	return &Record{
		Keys:   make([]string, 0, n),
		Values: make(map[string]interface{}, n),
	}
}

// Set appends key to the ordering if unseen and stores the value.
func (r *Record) Set(key string, value interface{}) {
	if _, ok := r.Values[key]; !ok {
		r.Keys = append(r.Keys, key)
	}
	r.Values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Len returns the number of entries.
func (r *Record) Len() int { return len(r.Keys) }

// MarshalJSON emits entries in declaration order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(r.Values[k])
		if err != nil {
			return nil, fmt.Errorf("record field %q: %w", k, err)
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// reshape converts a raw JSON-decoded value from the in-browser program into
// the host result shape: object positions become ordered Records keyed by the
// schema, arrays recurse. Leaf values pass through untouched.
func reshape(n *Node, raw interface{}) interface{} {
	switch n.Kind {
	case KindObject:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return raw
		}
		rec := NewRecord(len(n.Fields))
		for _, f := range n.Fields {
			rec.Set(f.Name, reshape(f.Node, m[f.Name]))
		}
		return rec
	case KindArray:
		items, ok := raw.([]interface{})
		if !ok {
			return raw
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = reshape(n.Child, item)
		}
		return out
	case KindCount:
		// JSON numbers decode as float64; counts are integers.
		if f, ok := raw.(float64); ok {
			return int(f)
		}
		return raw
	default:
		return raw
	}
}
