// Package hostctx defines the narrow interface through which a running
// script's engine talks back to its embedding application: log lines,
// metric samples, and a cooperative cancellation signal.
//
// Implementations must be safe for concurrent use; a single Context may
// back every engine in a pool. The engine polls ShouldCancel between
// instruction batches, so implementations should keep it cheap.
package hostctx

import "sync/atomic"

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Tag is a metric dimension.
type Tag struct {
	Key   string
	Value string
}

// Context is the host-side surface available to running scripts.
type Context interface {
	// Log emits one script log line.
	Log(level Level, msg string)
	// RecordMetric records one sample for a named metric.
	RecordMetric(name string, value float64, tags ...Tag)
	// ShouldCancel reports whether the current run should stop at the
	// next check point. Polled frequently.
	ShouldCancel() bool
}

// Convenience wrappers shared by all implementations.

// Debug logs at debug level via ctx.
func Debug(ctx Context, msg string) { ctx.Log(LevelDebug, msg) }

// Info logs at info level via ctx.
func Info(ctx Context, msg string) { ctx.Log(LevelInfo, msg) }

// Warn logs at warn level via ctx.
func Warn(ctx Context, msg string) { ctx.Log(LevelWarn, msg) }

// Error logs at error level via ctx.
func Error(ctx Context, msg string) { ctx.Log(LevelError, msg) }

// Count records a counter-style increment via ctx.
func Count(ctx Context, name string, delta float64, tags ...Tag) {
	ctx.RecordMetric(name, delta, tags...)
}

// Gauge records a gauge-style sample via ctx.
func Gauge(ctx Context, name string, value float64, tags ...Tag) {
	ctx.RecordMetric(name, value, tags...)
}

// Noop discards logs and metrics and never requests cancellation.
type Noop struct{}

func (Noop) Log(Level, string)                    {}
func (Noop) RecordMetric(string, float64, ...Tag) {}
func (Noop) ShouldCancel() bool                   { return false }

// Funcs adapts plain functions into a Context. Nil fields behave like
// Noop.
type Funcs struct {
	LogFunc    func(level Level, msg string)
	MetricFunc func(name string, value float64, tags []Tag)
	CancelFunc func() bool
}

func (f Funcs) Log(level Level, msg string) {
	if f.LogFunc != nil {
		f.LogFunc(level, msg)
	}
}

func (f Funcs) RecordMetric(name string, value float64, tags ...Tag) {
	if f.MetricFunc != nil {
		f.MetricFunc(name, value, tags)
	}
}

func (f Funcs) ShouldCancel() bool {
	if f.CancelFunc != nil {
		return f.CancelFunc()
	}
	return false
}

// Cancellable wraps a Context with a host-triggered cancel flag. The
// wrapped context's own ShouldCancel is still honored.
type Cancellable struct {
	inner     Context
	cancelled atomic.Bool
}

// NewCancellable wraps inner; a nil inner behaves like Noop.
func NewCancellable(inner Context) *Cancellable {
	if inner == nil {
		inner = Noop{}
	}
	return &Cancellable{inner: inner}
}

// Cancel requests that in-flight runs stop at their next check point.
func (c *Cancellable) Cancel() { c.cancelled.Store(true) }

// Reset clears the cancel flag.
func (c *Cancellable) Reset() { c.cancelled.Store(false) }

func (c *Cancellable) Log(level Level, msg string) { c.inner.Log(level, msg) }

func (c *Cancellable) RecordMetric(name string, value float64, tags ...Tag) {
	c.inner.RecordMetric(name, value, tags...)
}

func (c *Cancellable) ShouldCancel() bool {
	return c.cancelled.Load() || c.inner.ShouldCancel()
}
