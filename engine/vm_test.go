package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/value"
)

// evalUnlimited runs source on a fresh engine with no limits and the
// safe default grant.
func evalUnlimited(t *testing.T, source string) value.Value {
	t.Helper()
	e := New(Config{Limits: limits.Unlimited(), Capabilities: capability.SafeDefaults()})
	res, err := e.Execute(context.Background(), source)
	require.NoError(t, err)
	return res.Value
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want value.Value
	}{
		{"addition", "1 + 2", value.Int(3)},
		{"precedence", "1 + 2 * 3", value.Int(7)},
		{"parens", "(1 + 2) * 3", value.Int(9)},
		{"subtraction", "10 - 4", value.Int(6)},
		{"division", "9 / 2", value.Int(4)},
		{"modulo", "9 % 2", value.Int(1)},
		{"negation", "-5 + 3", value.Int(-2)},
		{"float math", "1.5 * 2.0", value.Float(3)},
		{"mixed widens", "1 + 0.5", value.Float(1.5)},
		{"string concat", `"foo" + "bar"`, value.Str("foobar")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalUnlimited(t, tt.src)
			if !got.Equal(tt.want) {
				t.Errorf("eval(%q) = %s, want %s", tt.src, got, tt.want)
			}
		})
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"1 == 1", true},
		{"1 == 1.0", true},
		{"1 != 2", true},
		{`"a" < "b"`, true},
		{`"x" == "x"`, true},
		{"null == null", true},
		{`1 == "1"`, false},
		// Adjacent int64 values past 2^53; float widening would see
		// them as equal.
		{"9007199254740993 > 9007199254740992", true},
		{"9007199254740992 < 9007199254740993", true},
		{"9007199254740993 <= 9007199254740992", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := evalUnlimited(t, tt.src)
			if !got.Equal(value.Bool(tt.want)) {
				t.Errorf("eval(%q) = %s, want %t", tt.src, got, tt.want)
			}
		})
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	// The rhs host call would fail (unknown function); short-circuit
	// must keep it from being reached.
	v := evalUnlimited(t, "false && explode()")
	assert.True(t, v.Equal(value.Bool(false)))

	v = evalUnlimited(t, "true || explode()")
	assert.True(t, v.Equal(value.Bool(true)))

	v = evalUnlimited(t, "true && 42")
	assert.True(t, v.Equal(value.Int(42)))
}

func TestVariablesAndControlFlow(t *testing.T) {
	v := evalUnlimited(t, `
		let total = 0
		let i = 1
		while i <= 10 {
			total = total + i
			i = i + 1
		}
		total
	`)
	assert.True(t, v.Equal(value.Int(55)))

	v = evalUnlimited(t, `
		let x = 7
		if x > 5 { "big" } else { "small" }
	`)
	assert.True(t, v.Equal(value.Str("big")))

	v = evalUnlimited(t, `
		let x = 3
		if x > 5 { "big" } else if x > 2 { "mid" } else { "small" }
	`)
	assert.True(t, v.Equal(value.Str("mid")))
}

func TestFunctions(t *testing.T) {
	v := evalUnlimited(t, `
		fn add(a, b) { return a + b }
		add(40, 2)
	`)
	assert.True(t, v.Equal(value.Int(42)))

	v = evalUnlimited(t, `
		fn fib(n) {
			if n < 2 { return n }
			return fib(n - 1) + fib(n - 2)
		}
		fib(10)
	`)
	assert.True(t, v.Equal(value.Int(55)))

	v = evalUnlimited(t, `
		fn noop() {}
		noop()
	`)
	assert.True(t, v.IsNull(), "fall-through returns null")
}

func TestListsAndMaps(t *testing.T) {
	v := evalUnlimited(t, "[1, 2, 3][1]")
	assert.True(t, v.Equal(value.Int(2)))

	v = evalUnlimited(t, `{"a": 1, "b": 2}["b"]`)
	assert.True(t, v.Equal(value.Int(2)))

	v = evalUnlimited(t, `{"a": 1}["missing"]`)
	assert.True(t, v.IsNull())

	v = evalUnlimited(t, `"hello"[1]`)
	assert.True(t, v.Equal(value.Str("e")))

	v = evalUnlimited(t, "len([1, 2, 3]) + len(\"ab\")")
	assert.True(t, v.Equal(value.Int(5)))
}

func TestTopLevelReturn(t *testing.T) {
	v := evalUnlimited(t, `
		return 99
		1 + 1
	`)
	assert.True(t, v.Equal(value.Int(99)), "top-level return ends the run")
}

func TestEmptyScriptYieldsNull(t *testing.T) {
	v := evalUnlimited(t, "// just a comment")
	assert.True(t, v.IsNull())
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"division by zero", "1 / 0", "division by zero"},
		{"modulo by zero", "1 % 0", "division by zero"},
		{"type mismatch", `1 + "a"`, "unsupported operand"},
		{"order mismatch", `1 < "a"`, "cannot order"},
		{"bad negate", `-"a"`, "cannot negate"},
		{"unknown function", "no_such_fn()", `unknown function "no_such_fn"`},
		{"list out of range", "[1][5]", "out of range"},
		{"index int", "42[0]", "cannot index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Limits: limits.Unlimited()})
			_, err := e.Execute(context.Background(), tt.src)
			require.Error(t, err)
			var rtErr *RuntimeError
			require.True(t, errors.As(err, &rtErr), "want *RuntimeError, got %T", err)
			assert.Contains(t, rtErr.Msg, tt.msg)
		})
	}
}

func TestInstructionLimit(t *testing.T) {
	e := New(Config{Limits: limits.Unlimited().WithMaxInstructions(10_000)})
	_, err := e.Execute(context.Background(), "while true {}")
	require.Error(t, err)

	var v *limits.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, limits.KindInstructions, v.Kind)
}

func TestStackDepthLimit(t *testing.T) {
	e := New(Config{Limits: limits.Unlimited().WithMaxStackDepth(32)})
	_, err := e.Execute(context.Background(), `
		fn down(n) { return down(n + 1) }
		down(0)
	`)
	require.Error(t, err)

	var v *limits.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, limits.KindStackDepth, v.Kind)
}

func TestMemoryLimit(t *testing.T) {
	e := New(Config{Limits: limits.Unlimited().WithMaxMemory(4 << 10)})
	_, err := e.Execute(context.Background(), `
		let s = "xxxxxxxxxxxxxxxx"
		while true {
			s = s + s
		}
	`)
	require.Error(t, err)

	var v *limits.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, limits.KindMemory, v.Kind)
}

func TestUsageReported(t *testing.T) {
	e := New(Config{Limits: limits.Unlimited()})
	res, err := e.Execute(context.Background(), `
		let i = 0
		while i < 100 { i = i + 1 }
		i
	`)
	require.NoError(t, err)
	assert.Positive(t, res.Usage.Instructions)
	assert.Positive(t, res.Usage.Elapsed)
}
