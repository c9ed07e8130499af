package value

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindBytes
	KindError
)

// String returns the lowercase type name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindBytes:
		return "bytes"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is the dynamic, tagged value exchanged between the host and scripts.
// Values are treated as immutable once handed across the boundary; the
// execution core passes them through unmodified.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string // string payload, also error message
	list []Value
	m    map[string]Value
	raw  []byte
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a 64-bit signed integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Str wraps a UTF-8 string.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// List wraps an ordered list of values.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// ListOf wraps an existing slice without copying.
func ListOf(items []Value) Value { return Value{kind: KindList, list: items} }

// Map wraps a string-keyed map of values.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Bytes wraps binary data.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Error wraps an in-band script error value.
func Error(msg string) Value { return Value{kind: KindError, s: msg} }

// Kind reports the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsError reports whether v is an error value.
func (v Value) IsError() bool { return v.kind == KindError }

// Truthy reports the boolean interpretation used by control flow:
// false, null, 0, 0.0 and "" are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the float payload; integers widen.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsList returns the list payload.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// AsMap returns the map payload.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// AsBytes returns the binary payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.raw, true
}

// AsError returns the error message payload.
func (v Value) AsError() (string, bool) {
	if v.kind != KindError {
		return "", false
	}
	return v.s, true
}

// Equal reports deep equality between two values. Ints and floats are
// distinct kinds and never compare equal to each other here; numeric
// coercion is the interpreter's concern.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString, KindError:
		return v.s == o.s
	case KindBytes:
		return string(v.raw) == string(o.raw)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Size approximates the heap cost of v in bytes, used by the memory
// accounting at allocation boundaries.
func (v Value) Size() int64 {
	const header = 16
	switch v.kind {
	case KindString, KindError:
		return header + int64(len(v.s))
	case KindBytes:
		return header + int64(len(v.raw))
	case KindList:
		n := int64(header)
		for _, e := range v.list {
			n += e.Size()
		}
		return n
	case KindMap:
		n := int64(header)
		for k, e := range v.m {
			n += int64(len(k)) + e.Size()
		}
		return n
	default:
		return header
	}
}

// String renders v for display: strings are quoted, containers recurse.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, v.m[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindBytes:
		return fmt.Sprintf("<bytes len=%d>", len(v.raw))
	case KindError:
		return fmt.Sprintf("<error: %s>", v.s)
	default:
		return "<unknown>"
	}
}

// Text returns the unquoted textual form: strings come back verbatim,
// everything else falls through to String.
func (v Value) Text() string {
	if v.kind == KindString {
		return v.s
	}
	return v.String()
}
