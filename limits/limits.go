// Package limits defines the resource ceilings a script run may consume
// and the per-run tracker that enforces them.
//
// Every ceiling is independently optional; a zero field means unlimited
// for that dimension. Limits values are plain data and freely shareable.
// A Tracker is owned by exactly one running engine at a time and is reset
// at the start of every run, so accounting never leaks across runs.
package limits

import (
	"fmt"
	"time"
)

// Limits holds the optional resource ceilings for one run. Zero fields
// are unlimited.
type Limits struct {
	// Timeout bounds wall-clock time for the whole run.
	Timeout time.Duration
	// MaxMemory bounds bytes attributed to script allocations.
	MaxMemory int64
	// MaxInstructions bounds the number of interpreted instructions.
	MaxInstructions int64
	// MaxStackDepth bounds nested call frames.
	MaxStackDepth int
	// MaxOutputBytes bounds bytes written through print-style builtins.
	MaxOutputBytes int64
	// MaxFsOps bounds filesystem host calls.
	MaxFsOps int64
	// MaxNetOps bounds network host calls.
	MaxNetOps int64
}

// Default returns ceilings suited to untrusted-but-cooperative scripts:
// 5s, 64 MiB, 10M instructions.
func Default() Limits {
	return Limits{
		Timeout:         5 * time.Second,
		MaxMemory:       64 << 20,
		MaxInstructions: 10_000_000,
		MaxStackDepth:   256,
		MaxOutputBytes:  1 << 20,
		MaxFsOps:        1000,
		MaxNetOps:       100,
	}
}

// Strict returns tight ceilings for adversarial input: 1s, 16 MiB,
// 1M instructions.
func Strict() Limits {
	return Limits{
		Timeout:         1 * time.Second,
		MaxMemory:       16 << 20,
		MaxInstructions: 1_000_000,
		MaxStackDepth:   64,
		MaxOutputBytes:  64 << 10,
		MaxFsOps:        100,
		MaxNetOps:       10,
	}
}

// Unlimited returns no ceilings at all.
func Unlimited() Limits { return Limits{} }

// WithTimeout returns a copy of l with the timeout replaced.
func (l Limits) WithTimeout(d time.Duration) Limits {
	l.Timeout = d
	return l
}

// WithMaxMemory returns a copy of l with the memory ceiling replaced.
func (l Limits) WithMaxMemory(n int64) Limits {
	l.MaxMemory = n
	return l
}

// WithMaxInstructions returns a copy of l with the instruction budget
// replaced.
func (l Limits) WithMaxInstructions(n int64) Limits {
	l.MaxInstructions = n
	return l
}

// WithMaxStackDepth returns a copy of l with the stack ceiling replaced.
func (l Limits) WithMaxStackDepth(n int) Limits {
	l.MaxStackDepth = n
	return l
}

// Kind names the limit dimension a Violation was raised on.
type Kind int

const (
	KindTimeout Kind = iota
	KindMemory
	KindInstructions
	KindStackDepth
	KindOutput
	KindFsOps
	KindNetOps
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindMemory:
		return "memory"
	case KindInstructions:
		return "instructions"
	case KindStackDepth:
		return "stack depth"
	case KindOutput:
		return "output bytes"
	case KindFsOps:
		return "fs ops"
	case KindNetOps:
		return "net ops"
	default:
		return "unknown"
	}
}

// Violation reports that a run crossed one of its ceilings. Used reflects
// the count at the moment of detection; Limit is the configured ceiling.
type Violation struct {
	Kind  Kind
	Used  int64
	Limit int64
}

func (e *Violation) Error() string {
	if e.Kind == KindTimeout {
		return fmt.Sprintf("limit exceeded: %s (%s elapsed, limit %s)",
			e.Kind, time.Duration(e.Used), time.Duration(e.Limit))
	}
	return fmt.Sprintf("limit exceeded: %s (%d used, limit %d)", e.Kind, e.Used, e.Limit)
}

// Usage is a point-in-time snapshot of a tracker.
type Usage struct {
	Instructions int64
	MemoryBytes  int64
	OutputBytes  int64
	FsOps        int64
	NetOps       int64
	Elapsed      time.Duration
}

// Tracker accumulates per-run usage against a Limits value. It is not
// safe for concurrent use; each running engine owns exactly one.
type Tracker struct {
	limits       Limits
	started      time.Time
	instructions int64
	memory       int64
	output       int64
	fsOps        int64
	netOps       int64
}

// NewTracker returns a tracker for l with the run clock started.
func NewTracker(l Limits) *Tracker {
	return &Tracker{limits: l, started: time.Now()}
}

// Reset clears all accumulated usage and restarts the run clock.
// Idempotent: resetting twice leaves the tracker in the same clean state.
func (t *Tracker) Reset() {
	t.started = time.Now()
	t.instructions = 0
	t.memory = 0
	t.output = 0
	t.fsOps = 0
	t.netOps = 0
}

// Limits returns the ceilings this tracker enforces.
func (t *Tracker) Limits() Limits { return t.limits }

// RecordInstructions adds n to the instruction count and fails once the
// budget is exhausted.
func (t *Tracker) RecordInstructions(n int64) error {
	t.instructions += n
	if max := t.limits.MaxInstructions; max > 0 && t.instructions > max {
		return &Violation{Kind: KindInstructions, Used: t.instructions, Limit: max}
	}
	return nil
}

// RecordMemory adds n bytes to the memory count. Called at allocation
// boundaries; a violation means the allocation must not proceed.
func (t *Tracker) RecordMemory(n int64) error {
	t.memory += n
	if max := t.limits.MaxMemory; max > 0 && t.memory > max {
		return &Violation{Kind: KindMemory, Used: t.memory, Limit: max}
	}
	return nil
}

// RecordOutput adds n bytes to the output count.
func (t *Tracker) RecordOutput(n int64) error {
	t.output += n
	if max := t.limits.MaxOutputBytes; max > 0 && t.output > max {
		return &Violation{Kind: KindOutput, Used: t.output, Limit: max}
	}
	return nil
}

// RecordFsOp counts one filesystem host call.
func (t *Tracker) RecordFsOp() error {
	t.fsOps++
	if max := t.limits.MaxFsOps; max > 0 && t.fsOps > max {
		return &Violation{Kind: KindFsOps, Used: t.fsOps, Limit: max}
	}
	return nil
}

// RecordNetOp counts one network host call.
func (t *Tracker) RecordNetOp() error {
	t.netOps++
	if max := t.limits.MaxNetOps; max > 0 && t.netOps > max {
		return &Violation{Kind: KindNetOps, Used: t.netOps, Limit: max}
	}
	return nil
}

// CheckStackDepth fails when depth exceeds the configured ceiling.
func (t *Tracker) CheckStackDepth(depth int) error {
	if max := t.limits.MaxStackDepth; max > 0 && depth > max {
		return &Violation{Kind: KindStackDepth, Used: int64(depth), Limit: int64(max)}
	}
	return nil
}

// CheckTimeout fails once the run clock has passed the wall-clock ceiling.
func (t *Tracker) CheckTimeout() error {
	max := t.limits.Timeout
	if max <= 0 {
		return nil
	}
	if elapsed := time.Since(t.started); elapsed > max {
		return &Violation{Kind: KindTimeout, Used: int64(elapsed), Limit: int64(max)}
	}
	return nil
}

// Elapsed returns time since the run clock started.
func (t *Tracker) Elapsed() time.Duration { return time.Since(t.started) }

// Usage returns a snapshot of accumulated usage.
func (t *Tracker) Usage() Usage {
	return Usage{
		Instructions: t.instructions,
		MemoryBytes:  t.memory,
		OutputBytes:  t.output,
		FsOps:        t.fsOps,
		NetOps:       t.netOps,
		Elapsed:      time.Since(t.started),
	}
}
