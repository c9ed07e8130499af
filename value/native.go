package value

import "fmt"

// FromNative converts a plain Go value into a Value. Supported inputs are
// nil, bool, the integer and float families, string, []byte, []any,
// map[string]any, error, and slices/maps of Value. Anything else fails.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return Str(x), nil
	case []byte:
		return Bytes(x), nil
	case error:
		return Error(x.Error()), nil
	case []Value:
		return ListOf(x), nil
	case map[string]Value:
		return Map(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			ev, err := FromNative(e)
			if err != nil {
				return Null(), err
			}
			items[i] = ev
		}
		return ListOf(items), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := FromNative(e)
			if err != nil {
				return Null(), err
			}
			m[k] = ev
		}
		return Map(m), nil
	default:
		return Null(), fmt.Errorf("unsupported native type %T", v)
	}
}

// ToNative converts v back to plain Go values: null→nil, list→[]any,
// map→map[string]any, error→string message.
func (v Value) ToNative() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindError:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToNative()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToNative()
		}
		return out
	default:
		return nil
	}
}
