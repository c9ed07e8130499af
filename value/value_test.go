package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsAndAccessors(t *testing.T) {
	i, ok := Int(42).AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	s, ok := Str("hello").AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = Str("hello").AsInt()
	assert.False(t, ok)

	f, ok := Int(3).AsFloat()
	require.True(t, ok, "ints widen to float")
	assert.Equal(t, 3.0, f)

	assert.True(t, Null().IsNull())
	assert.True(t, Error("boom").IsError())
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero int", Int(0), false},
		{"nonzero int", Int(-1), true},
		{"zero float", Float(0), false},
		{"empty string", Str(""), false},
		{"string", Str("x"), true},
		{"empty list", List(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Truthy(); got != tt.want {
				t.Errorf("Truthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Int(1).Equal(Int(1)))
	assert.False(t, Int(1).Equal(Float(1)), "int and float are distinct kinds")
	assert.True(t, List(Int(1), Str("a")).Equal(List(Int(1), Str("a"))))
	assert.False(t, List(Int(1)).Equal(List(Int(2))))
	assert.True(t, Map(map[string]Value{"k": Int(1)}).Equal(Map(map[string]Value{"k": Int(1)})))
	assert.False(t, Map(map[string]Value{"k": Int(1)}).Equal(Map(map[string]Value{"j": Int(1)})))
}

func TestString(t *testing.T) {
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, `"hi"`, Str("hi").String())
	assert.Equal(t, "hi", Str("hi").Text())
	assert.Equal(t, "[1, 2]", List(Int(1), Int(2)).String())
	assert.Equal(t, `{"a": 1, "b": 2}`, Map(map[string]Value{"b": Int(2), "a": Int(1)}).String(), "map keys render sorted")
}

func TestSizeGrowsWithPayload(t *testing.T) {
	small := Str("a").Size()
	big := Str("aaaaaaaaaaaaaaaa").Size()
	assert.Greater(t, big, small)

	list := List(Str("aaaa"), Str("bbbb"))
	assert.Greater(t, list.Size(), Str("aaaa").Size())
}

func TestFromNative(t *testing.T) {
	v, err := FromNative(map[string]any{"n": 3, "items": []any{"a", true, nil}})
	require.NoError(t, err)
	m, ok := v.AsMap()
	require.True(t, ok)
	assert.True(t, m["n"].Equal(Int(3)))
	assert.True(t, m["items"].Equal(List(Str("a"), Bool(true), Null())))

	_, err = FromNative(struct{}{})
	assert.Error(t, err)
}

func TestToNativeRoundTrip(t *testing.T) {
	v := Map(map[string]Value{"x": List(Int(1), Float(2.5))})
	native := v.ToNative()
	back, err := FromNative(native)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestJSON(t *testing.T) {
	v, err := FromJSON([]byte(`{"a": 1, "b": 2.5, "c": [true, null, "x"]}`))
	require.NoError(t, err)
	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, KindInt, m["a"].Kind(), "whole json numbers parse as int")
	assert.Equal(t, KindFloat, m["b"].Kind())

	data, err := ToJSON(List(Int(1), Str("a")))
	require.NoError(t, err)
	assert.JSONEq(t, `[1, "a"]`, string(data))

	_, err = ToJSON(Bytes([]byte{1, 2}))
	assert.Error(t, err)
}
