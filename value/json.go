package value

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ToJSON serializes v as JSON. Bytes values are not representable and
// fail; error values serialize as {"error": msg}.
func ToJSON(v Value) ([]byte, error) {
	if v.Kind() == KindBytes {
		return nil, fmt.Errorf("bytes value is not JSON-representable")
	}
	native := v.ToNative()
	if v.Kind() == KindError {
		native = map[string]any{"error": v.s}
	}
	data, err := sonic.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

// FromJSON parses JSON into a Value. JSON numbers with no fractional part
// that fit in int64 become Int; all others become Float.
func FromJSON(data []byte) (Value, error) {
	var native any
	if err := sonic.Unmarshal(data, &native); err != nil {
		return Null(), fmt.Errorf("parse json: %w", err)
	}
	return fromJSONNative(native)
}

func fromJSONNative(v any) (Value, error) {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			ev, err := fromJSONNative(e)
			if err != nil {
				return Null(), err
			}
			items[i] = ev
		}
		return ListOf(items), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := fromJSONNative(e)
			if err != nil {
				return Null(), err
			}
			m[k] = ev
		}
		return Map(m), nil
	default:
		return FromNative(v)
	}
}
