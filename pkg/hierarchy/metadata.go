package hierarchy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the primitive held by a Value
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a metadata value: a string, a number or a boolean
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

// String returns a string Value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric Value
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Bool returns a boolean Value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the kind of v
func (v Value) Kind() Kind { return v.kind }

// Str returns the string held by v
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Num returns the number held by v
func (v Value) Num() (float64, bool) { return v.n, v.kind == KindNumber }

// Boolean returns the boolean held by v
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Interface returns v as a plain Go value
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("%w: empty metadata value", ErrValidation)
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty metadata value", ErrValidation)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{', '[', 'n':
		return fmt.Errorf("%w: metadata values must be strings, numbers or booleans", ErrValidation)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}

// Metadata holds extended profile attributes (username, email, phone,
// manager, account flags)
type Metadata map[string]Value

// UnmarshalJSON drops null members and rejects nested values
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: metadata must be an object", ErrValidation)
	}

	out := make(Metadata, len(raw))
	for key, msg := range raw {
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			continue
		}
		var v Value
		if err := v.UnmarshalJSON(msg); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		out[key] = v
	}
	*m = out
	return nil
}

// Clone returns an independent copy of m
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the metadata keys in sorted order
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
