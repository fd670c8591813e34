package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldSet is an insertion-ordered string map. Setting an existing key
// replaces its value but keeps the key's original position.
type FieldSet struct {
	keys   []string
	values map[string]string
}

// NewFieldSet returns an empty FieldSet
func NewFieldSet() *FieldSet {
	return &FieldSet{values: make(map[string]string)}
}

// Set stores value under key
func (f *FieldSet) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value for key
func (f *FieldSet) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

// Keys returns keys in insertion order
func (f *FieldSet) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func (f *FieldSet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Clone returns an independent copy
func (f *FieldSet) Clone() *FieldSet {
	c := NewFieldSet()
	if f == nil {
		return c
	}
	for _, k := range f.keys {
		c.Set(k, f.values[k])
	}
	return c
}

// MarshalJSON writes the object with keys in insertion order
func (f *FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if f != nil {
		for i, k := range f.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(f.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat string object, keeping document order
func (f *FieldSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fieldset: expected JSON object")
	}
	*f = FieldSet{values: make(map[string]string)}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return err
		}
		f.Set(kt.(string), v)
	}
	_, err = dec.Token()
	return err
}
