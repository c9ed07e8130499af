// Package capability defines the permission tags scripts must hold to
// perform privileged host operations, and the immutable sets they are
// granted in.
//
// A Set is a plain bitmask value. Granting is additive and happens only
// at construction time; the execution core consults the set before every
// privileged call and never caches the outcome, so two calls to the same
// host function are two independent checks.
package capability

import (
	"fmt"
	"strings"
)

// Capability is a single permission tag.
type Capability uint8

const (
	FsRead Capability = iota
	FsWrite
	FsExecute
	NetRequest
	NetListen
	ProcessExec
	EnvRead
	EnvWrite
	TimeRead
	Random
	StdinRead
	StdoutWrite
	StderrWrite
	Metrics
	Logging
	AsyncSpawn
	Crypto
	Serialize

	numCapabilities = iota
)

var names = [numCapabilities]string{
	FsRead:      "fs:read",
	FsWrite:     "fs:write",
	FsExecute:   "fs:execute",
	NetRequest:  "net:request",
	NetListen:   "net:listen",
	ProcessExec: "process:exec",
	EnvRead:     "env:read",
	EnvWrite:    "env:write",
	TimeRead:    "time:read",
	Random:      "random",
	StdinRead:   "stdin:read",
	StdoutWrite: "stdout:write",
	StderrWrite: "stderr:write",
	Metrics:     "metrics",
	Logging:     "logging",
	AsyncSpawn:  "async:spawn",
	Crypto:      "crypto",
	Serialize:   "serialize",
}

// String returns the canonical tag name, e.g. "fs:read".
func (c Capability) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// Parse resolves a canonical tag name back to its Capability.
func Parse(name string) (Capability, error) {
	for i, n := range names {
		if n == name {
			return Capability(i), nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// IsDangerous reports whether the tag grants write, exec, or network
// reach beyond the host process.
func (c Capability) IsDangerous() bool {
	switch c {
	case FsWrite, FsExecute, NetListen, ProcessExec, EnvWrite:
		return true
	default:
		return false
	}
}

// List returns all defined capabilities in declaration order.
func List() []Capability {
	out := make([]Capability, numCapabilities)
	for i := range out {
		out[i] = Capability(i)
	}
	return out
}

// Set is an immutable capability set. The zero value grants nothing.
type Set struct {
	bits uint32
}

// None returns the empty set. Every privileged operation is denied.
func None() Set { return Set{} }

// SafeDefaults returns the read-only, side-effect-free grant: time,
// randomness, stdout, logging, metrics and serialization.
func SafeDefaults() Set {
	return None().With(TimeRead, Random, StdoutWrite, Logging, Metrics, Serialize)
}

// All returns the full grant, dangerous tags included.
func All() Set {
	return Set{bits: (1 << numCapabilities) - 1}
}

// Of builds a set from the given tags.
func Of(caps ...Capability) Set { return None().With(caps...) }

// With returns a copy of s with the given tags added. s is unchanged.
func (s Set) With(caps ...Capability) Set {
	for _, c := range caps {
		s.bits |= 1 << c
	}
	return s
}

// Without returns a copy of s with the given tags removed.
func (s Set) Without(caps ...Capability) Set {
	for _, c := range caps {
		s.bits &^= 1 << c
	}
	return s
}

// Has reports whether c is granted.
func (s Set) Has(c Capability) bool { return s.bits&(1<<c) != 0 }

// Require returns a DeniedError if c is not granted.
func (s Set) Require(c Capability) error {
	if !s.Has(c) {
		return &DeniedError{Capability: c}
	}
	return nil
}

// Merge returns the union of s and o.
func (s Set) Merge(o Set) Set { return Set{bits: s.bits | o.bits} }

// Intersect returns the tags granted by both s and o.
func (s Set) Intersect(o Set) Set { return Set{bits: s.bits & o.bits} }

// IsEmpty reports whether the set grants nothing.
func (s Set) IsEmpty() bool { return s.bits == 0 }

// Len returns the number of granted tags.
func (s Set) Len() int {
	n := 0
	for c := Capability(0); c < numCapabilities; c++ {
		if s.Has(c) {
			n++
		}
	}
	return n
}

// Slice returns the granted tags in declaration order.
func (s Set) Slice() []Capability {
	out := make([]Capability, 0, s.Len())
	for c := Capability(0); c < numCapabilities; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// String renders the set as "{fs:read, time:read}".
func (s Set) String() string {
	caps := s.Slice()
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = c.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// DeniedError reports a privileged operation attempted without its
// capability. No side effect of the operation has occurred.
type DeniedError struct {
	Capability Capability
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("capability denied: %s", e.Capability)
}
