// Package compile turns script source into immutable, shareable
// bytecode artifacts.
//
// Compilation is pure: no shared mutable state, so any number of
// goroutines may compile concurrently. The produced Script carries the
// FZB-framed bytecode, the scanned metadata (required capabilities,
// imports, exports), the source content hash, and any warnings. Scripts
// never change after creation; one Script may back concurrent runs on
// many engines.
package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Error reports a lexing, parsing, or code generation failure with its
// source position.
type Error struct {
	Message string
	Line    int
	Col     int
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("compile error at %d:%d: %s", e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("compile error: %s", e.Message)
}

// Options controls compilation.
type Options struct {
	// Optimize enables constant folding.
	Optimize bool
	// Debug marks the emitted frame as a debug build.
	Debug bool
}

// Development returns options suited to iterating: debug frames, no
// optimization.
func Development() Options { return Options{Debug: true} }

// Production returns optimized, non-debug options.
func Production() Options { return Options{Optimize: true} }

// Warning is a non-fatal finding from compilation.
type Warning struct {
	Message string
	Line    int
}

// Metadata is what a script declares about itself: capability
// requirements from "// @require cap" comments, imported modules, and
// exported functions.
type Metadata struct {
	RequiredCapabilities []string
	Imports              []string
	Exports              []string
}

// Stats describes one compilation.
type Stats struct {
	SourceBytes   int
	BytecodeBytes int
	Instructions  int
	Constants     int
	Functions     int
	Duration      time.Duration
}

// Script is an immutable compiled artifact.
type Script struct {
	bytecode []byte
	program  *Program
	meta     Metadata
	hash     string
	warnings []Warning
	stats    Stats
}

// Bytecode returns a copy of the FZB frame.
func (s *Script) Bytecode() []byte {
	return append([]byte(nil), s.bytecode...)
}

// Program returns the decoded executable form. Callers must not modify
// it.
func (s *Script) Program() *Program { return s.program }

// Metadata returns the script's declared metadata.
func (s *Script) Metadata() Metadata { return s.meta }

// Hash returns the hex sha256 of the source text. Two compilations of
// identical source share the hash, which keys the cache.
func (s *Script) Hash() string { return s.hash }

// Warnings returns the non-fatal findings.
func (s *Script) Warnings() []Warning { return append([]Warning(nil), s.warnings...) }

// Stats returns compilation statistics.
func (s *Script) Stats() Stats { return s.stats }

// Exports returns the exported function names.
func (s *Script) Exports() []string { return append([]string(nil), s.meta.Exports...) }

// Source compiles source text into a Script.
func Source(source string, opts Options) (*Script, error) {
	start := time.Now()

	p, perr := newParser(source)
	if perr != nil {
		return nil, perr
	}
	stmts, perr := p.parseProgram()
	if perr != nil {
		return nil, perr
	}
	prog, perr := generate(stmts, opts)
	if perr != nil {
		return nil, perr
	}

	var flags byte
	if opts.Debug {
		flags |= flagDebug
	}
	frame, err := EncodeProgram(prog, flags)
	if err != nil {
		return nil, fmt.Errorf("encode bytecode: %w", err)
	}

	meta := ScanMetadata(source)
	digest := sha256.Sum256([]byte(source))
	return &Script{
		bytecode: frame,
		program:  prog,
		meta:     meta,
		hash:     hex.EncodeToString(digest[:]),
		warnings: scanWarnings(source),
		stats: Stats{
			SourceBytes:   len(source),
			BytecodeBytes: len(frame),
			Instructions:  len(prog.Code),
			Constants:     len(prog.Consts),
			Functions:     len(prog.Funcs),
			Duration:      time.Since(start),
		},
	}, nil
}

// File compiles a script file. Only .fsx and .fusabi files are accepted.
func File(path string, opts Options) (*Script, error) {
	switch ext := filepath.Ext(path); ext {
	case ".fsx", ".fusabi":
	default:
		return nil, &Error{Message: fmt.Sprintf("unsupported script extension %q", filepath.Ext(path))}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Source(string(data), opts)
}

// Load reconstructs a Script from a previously produced FZB frame.
// Source-derived fields (hash, metadata, warnings) are not recoverable
// from the frame beyond the exported function list.
func Load(frame []byte) (*Script, error) {
	prog, err := DecodeProgram(frame)
	if err != nil {
		return nil, err
	}
	var exports []string
	for _, f := range prog.Funcs {
		if f.Exported {
			exports = append(exports, f.Name)
		}
	}
	digest := sha256.Sum256(frame)
	return &Script{
		bytecode: append([]byte(nil), frame...),
		program:  prog,
		meta:     Metadata{Exports: exports},
		hash:     hex.EncodeToString(digest[:]),
		stats: Stats{
			BytecodeBytes: len(frame),
			Instructions:  len(prog.Code),
			Constants:     len(prog.Consts),
			Functions:     len(prog.Funcs),
		},
	}, nil
}

// ScanMetadata extracts declarations from source without compiling it:
// "// @require cap" comments, "import name" lines, and
// "export fn name(...)" declarations.
func ScanMetadata(source string) Metadata {
	var meta Metadata
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "//"):
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
			if req, ok := strings.CutPrefix(comment, "@require "); ok {
				meta.RequiredCapabilities = append(meta.RequiredCapabilities, strings.TrimSpace(req))
			}
		case strings.HasPrefix(trimmed, "import "):
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "import "))
			name = strings.TrimSuffix(name, ";")
			if name != "" {
				meta.Imports = append(meta.Imports, name)
			}
		case strings.HasPrefix(trimmed, "export fn "):
			rest := strings.TrimPrefix(trimmed, "export fn ")
			if i := strings.IndexByte(rest, '('); i > 0 {
				meta.Exports = append(meta.Exports, strings.TrimSpace(rest[:i]))
			}
		}
	}
	return meta
}

// scanWarnings flags TODO/FIXME comments and discarded let bindings.
func scanWarnings(source string) []Warning {
	var warnings []Warning
	for i, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if idx := strings.Index(trimmed, "//"); idx >= 0 {
			comment := trimmed[idx:]
			if strings.Contains(comment, "TODO") || strings.Contains(comment, "FIXME") {
				warnings = append(warnings, Warning{Message: "unresolved TODO/FIXME comment", Line: i + 1})
			}
		}
		if strings.HasPrefix(trimmed, "let _ ") || strings.HasPrefix(trimmed, "let _=") {
			warnings = append(warnings, Warning{Message: "binding discarded with let _", Line: i + 1})
		}
	}
	return warnings
}
