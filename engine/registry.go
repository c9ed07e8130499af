package engine

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/hostctx"
	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/sandbox"
	"github.com/fusabi-lang/fusabi-host/value"
)

// HostFunc is one native function callable from scripts. Every
// privileged effect must go through rc's capability and sandbox checks
// before it happens.
type HostFunc func(rc *RunContext, args []value.Value) (value.Value, error)

// Registry maps script-visible names to host functions. Bare names
// ("now") and dotted module names ("strings.upper") share one
// namespace. Safe for concurrent use; registration after engines start
// running is visible to subsequent calls.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]HostFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]HostFunc{}}
}

// Register binds name to fn, replacing any previous binding.
func (r *Registry) Register(name string, fn HostFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterModule binds each function under "module.name".
func (r *Registry) RegisterModule(module string, funcs map[string]HostFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, fn := range funcs {
		r.funcs[module+"."+name] = fn
	}
}

// Lookup resolves name.
func (r *Registry) Lookup(name string) (HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunContext is the per-run view host functions receive: the run's
// context, its accounting tracker, and the engine's grants and policy.
type RunContext struct {
	ctx     context.Context
	runID   string
	caps    capability.Set
	sandbox *sandbox.Sandbox
	tracker *limits.Tracker
	host    hostctx.Context
	stdout  io.Writer
}

// Context returns the run's context; blocking host work must honor it.
func (rc *RunContext) Context() context.Context { return rc.ctx }

// RunID returns this run's identifier.
func (rc *RunContext) RunID() string { return rc.runID }

// Require fails with a capability.DeniedError unless c is granted.
// Checked live on every call, never cached.
func (rc *RunContext) Require(c capability.Capability) error {
	return rc.caps.Require(c)
}

// Sandbox returns the run's target policy.
func (rc *RunContext) Sandbox() *sandbox.Sandbox { return rc.sandbox }

// Tracker returns the run's limit accounting.
func (rc *RunContext) Tracker() *limits.Tracker { return rc.tracker }

// Host returns the embedding application's context.
func (rc *RunContext) Host() hostctx.Context { return rc.host }

// Interrupted maps an interruption observed during blocking host work
// to the run's failure taxonomy. The run context carries the wall-clock
// deadline, so a host call woken by Done() must distinguish the limit
// expiring from a genuine cancellation: an expired clock reports the
// timeout violation, everything else reports cancellation.
func (rc *RunContext) Interrupted() error {
	if err := rc.tracker.CheckTimeout(); err != nil {
		return err
	}
	return ErrCancelled
}

// WriteOutput writes b to the run's stdout, charging the output budget
// first so an over-limit write never happens.
func (rc *RunContext) WriteOutput(b []byte) error {
	if err := rc.tracker.RecordOutput(int64(len(b))); err != nil {
		return err
	}
	_, err := rc.stdout.Write(b)
	return err
}
