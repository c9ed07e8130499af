package compile

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceSimpleExpression(t *testing.T) {
	script, err := Source("1 + 2", Options{})
	require.NoError(t, err)
	require.NotNil(t, script)

	prog := script.Program()
	assert.NotEmpty(t, prog.Code)
	assert.Equal(t, OpHalt, prog.Code[len(prog.Code)-1].Op)
	assert.NotEmpty(t, script.Bytecode())
	assert.Len(t, script.Hash(), 64)
}

func TestSourceSyntaxError(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unclosed paren", "(1 + 2"},
		{"unterminated string", `"abc`},
		{"bad character", "1 $ 2"},
		{"let without value", "let x ="},
		{"unclosed block", "if true { 1"},
		{"lone ampersand", "1 & 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Source(tt.src, Options{})
			require.Error(t, err)
			var cerr *Error
			require.True(t, errors.As(err, &cerr), "want *Error, got %T", err)
		})
	}
}

func TestUndefinedVariable(t *testing.T) {
	_, err := Source("let x = y + 1", Options{})
	require.Error(t, err)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Message, `"y"`)
	assert.Equal(t, 1, cerr.Line)
}

func TestFunctionArity(t *testing.T) {
	_, err := Source("fn add(a, b) { return a + b }\nadd(1)", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 argument(s)")
}

func TestForwardFunctionReference(t *testing.T) {
	_, err := Source("let x = twice(3)\nfn twice(n) { return n * 2 }", Options{})
	assert.NoError(t, err, "calls may precede the declaration")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	script, err := Source(`
		// @require time:read
		let greeting = "hello"
		fn shout(s) { return s + "!" }
		export fn greet(name) { return greeting + " " + name }
		shout(greeting)
	`, Options{})
	require.NoError(t, err)

	decoded, err := DecodeProgram(script.Bytecode())
	require.NoError(t, err)

	orig := script.Program()
	assert.Equal(t, len(orig.Code), len(decoded.Code))
	assert.Equal(t, len(orig.Consts), len(decoded.Consts))
	assert.Equal(t, orig.Names, decoded.Names)
	assert.Equal(t, orig.Funcs, decoded.Funcs)
	assert.Equal(t, orig.MainLocals, decoded.MainLocals)
}

func TestValidate(t *testing.T) {
	script, err := Source("1 + 2", Options{})
	require.NoError(t, err)
	frame := script.Bytecode()

	assert.NoError(t, Validate(frame))

	assert.Error(t, Validate([]byte("short")))
	assert.Error(t, Validate([]byte("not a frame at all, but long enough to pass the length check")))

	bad := append([]byte(nil), frame...)
	bad[4] = 99
	assert.Error(t, Validate(bad), "unsupported version")

	corrupt := append([]byte(nil), frame...)
	corrupt[len(corrupt)-1] ^= 0xFF
	assert.Error(t, Validate(corrupt), "digest mismatch")
}

func TestFrameFlags(t *testing.T) {
	dbg, err := Source("1", Development())
	require.NoError(t, err)
	flags, err := FrameFlags(dbg.Bytecode())
	require.NoError(t, err)
	assert.NotZero(t, flags&flagDebug)

	prod, err := Source("1", Production())
	require.NoError(t, err)
	flags, err = FrameFlags(prod.Bytecode())
	require.NoError(t, err)
	assert.Zero(t, flags&flagDebug)
}

func TestLoad(t *testing.T) {
	script, err := Source("export fn f() { return 1 }\n2", Options{})
	require.NoError(t, err)

	loaded, err := Load(script.Bytecode())
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, loaded.Exports())
	assert.Equal(t, len(script.Program().Code), len(loaded.Program().Code))

	_, err = Load([]byte("garbage"))
	assert.Error(t, err)
}

func TestScanMetadata(t *testing.T) {
	meta := ScanMetadata(`
// @require fs:read
// @require net:request
import strings
import json;
export fn handler(req) { return req }
fn internal() { return 0 }
`)
	assert.Equal(t, []string{"fs:read", "net:request"}, meta.RequiredCapabilities)
	assert.Equal(t, []string{"strings", "json"}, meta.Imports)
	assert.Equal(t, []string{"handler"}, meta.Exports)
}

func TestWarnings(t *testing.T) {
	script, err := Source(`
let _ = 5
1 + 1 // TODO drop this
`, Options{})
	require.NoError(t, err)

	warnings := script.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "let _")
	assert.Contains(t, warnings[1].Message, "TODO")
}

func TestConstantFolding(t *testing.T) {
	plain, err := Source("1 + 2 * 3", Options{})
	require.NoError(t, err)
	opt, err := Source("1 + 2 * 3", Production())
	require.NoError(t, err)
	assert.Less(t, len(opt.Program().Code), len(plain.Program().Code))
}

func TestFileExtension(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "script.fsx")
	require.NoError(t, os.WriteFile(good, []byte("40 + 2"), 0o644))
	script, err := File(good, Options{})
	require.NoError(t, err)
	assert.NotNil(t, script)

	bad := filepath.Join(dir, "script.txt")
	require.NoError(t, os.WriteFile(bad, []byte("40 + 2"), 0o644))
	_, err = File(bad, Options{})
	assert.Error(t, err)

	_, err = File(filepath.Join(dir, "missing.fsx"), Options{})
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	script, err := Source(`let x = 1
fn f(a) { return a }
f(x)`, Options{})
	require.NoError(t, err)

	stats := script.Stats()
	assert.Positive(t, stats.SourceBytes)
	assert.Positive(t, stats.BytecodeBytes)
	assert.Positive(t, stats.Instructions)
	assert.Equal(t, 1, stats.Functions)
}

func TestCacheSharesArtifacts(t *testing.T) {
	c := NewCache()

	a, err := c.Source("1 + 2", Options{})
	require.NoError(t, err)
	b, err := c.Source("1 + 2", Options{})
	require.NoError(t, err)
	assert.Same(t, a, b, "hit must return the same immutable script")

	other, err := c.Source("1 + 3", Options{})
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCacheKeyIncludesOptions(t *testing.T) {
	c := NewCache()
	plain, err := c.Source("1 + 2", Options{})
	require.NoError(t, err)
	opt, err := c.Source("1 + 2", Production())
	require.NoError(t, err)
	assert.NotSame(t, plain, opt)
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	results := make([]*Script, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Source("let x = 10\nx * x", Options{})
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range results[1:] {
		assert.Same(t, results[0], s)
	}
}

func TestDiskCachePersists(t *testing.T) {
	dir := t.TempDir()

	c1, err := NewDiskCache(dir)
	require.NoError(t, err)
	_, err = c1.Source("6 * 7", Options{})
	require.NoError(t, err)

	// A fresh cache over the same dir hits the disk tier.
	c2, err := NewDiskCache(dir)
	require.NoError(t, err)
	script, err := c2.Source("6 * 7", Options{})
	require.NoError(t, err)
	assert.NotNil(t, script.Program())

	hits, _ := c2.Stats()
	assert.Equal(t, int64(1), hits)
}
