package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// maxUnwrapDepth bounds recursion through nested {value: ...} wrappers.
const maxUnwrapDepth = 4

// Value holds a field that the upstream serves either as a bare scalar or as
// a wrapper object such as {"value": ...} or {"uuid": ...}.
// The zero Value is empty.
type Value struct {
	raw json.RawMessage
}

// NewValue builds a Value from any JSON-encodable input.
func NewValue(v any) Value {
	if v == nil {
		return Value{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}
	}
	return Value{raw: data}
}

// UnmarshalJSON keeps the raw bytes; interpretation happens on access.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}

// MarshalJSON returns the raw bytes, or null for the zero Value.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// String returns the unwrapped scalar, or "" when there is none.
func (v Value) String() string {
	s, _ := ExtractValue(v.raw)
	return s
}

// Lookup returns the unwrapped scalar and whether one was found.
func (v Value) Lookup() (string, bool) {
	return ExtractValue(v.raw)
}

// ExtractValue unwraps a bare string, number or boolean, or an object carrying
// a "value" or "uuid" key, recursively. Empty strings and null count as absent.
func ExtractValue(raw json.RawMessage) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return "", false
	}
	return extract(x, 0)
}

func extract(x any, depth int) (string, bool) {
	if depth > maxUnwrapDepth {
		return "", false
	}
	switch t := x.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any:
		for _, key := range []string{"value", "uuid"} {
			if inner, ok := t[key]; ok && inner != nil {
				if s, ok := extract(inner, depth+1); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}

// unwrap returns the payload of a {"value": X} wrapper, or data unchanged.
func unwrap(data []byte) []byte {
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return data
		}
		var w map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return data
		}
		inner, ok := w["value"]
		if !ok || bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
			return data
		}
		data = inner
	}
	return data
}
