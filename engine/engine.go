// Package engine executes compiled scripts under capability, sandbox,
// and resource-limit enforcement.
//
// An Engine runs one script at a time. Between instruction batches the
// run loop performs three checks in a fixed order: instruction budget,
// wall clock, then cancellation; memory is charged at every allocation
// site. Engines move Idle → Running → Idle around each run; a run that
// fails leaves the engine reusable, with its accounting reset at the
// start of the next run.
package engine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/compile"
	"github.com/fusabi-lang/fusabi-host/hostctx"
	"github.com/fusabi-lang/fusabi-host/internal/id"
	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/sandbox"
	"github.com/fusabi-lang/fusabi-host/value"
)

// State is the engine lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Result is the outcome of one successful run.
type Result struct {
	// Value is the run's result: the last top-level expression
	// evaluated, or null if there was none.
	Value value.Value
	// Usage is the run's final resource accounting.
	Usage limits.Usage
	// RunID identifies this run in logs.
	RunID string
}

// Engine executes scripts. Safe for concurrent use in the sense that
// concurrent Execute calls serialize; use a pool for parallelism.
type Engine struct {
	id       string
	cfg      Config
	host     hostctx.Context
	registry *Registry
	box      *sandbox.Sandbox
	tracker  *limits.Tracker
	cache    *compile.Cache
	log      *zap.Logger

	mu        sync.Mutex
	cancelled atomic.Bool
	state     atomic.Int32
}

// New returns an engine with a no-op host context.
func New(cfg Config) *Engine {
	return WithContext(cfg, hostctx.Noop{})
}

// WithContext returns an engine that reports to host. A nil host
// behaves like hostctx.Noop.
func WithContext(cfg Config, host hostctx.Context) *Engine {
	if host == nil {
		host = hostctx.Noop{}
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = compile.NewCache()
	}
	engineID := id.New(id.Engine)
	e := &Engine{
		id:       engineID,
		cfg:      cfg,
		host:     host,
		registry: NewRegistry(),
		box:      sandbox.New(cfg.Sandbox),
		tracker:  limits.NewTracker(cfg.Limits),
		cache:    cache,
		log:      cfg.Logger.Named("engine").With(zap.String("engine_id", engineID)),
	}
	registerBuiltins(e.registry, cfg.NetLimiter)
	return e
}

// ID returns the engine's identifier.
func (e *Engine) ID() string { return e.id }

// State returns the engine's current lifecycle position.
func (e *Engine) State() State { return State(e.state.Load()) }

// Registry returns the engine's host-function registry for extension.
func (e *Engine) Registry() *Registry { return e.registry }

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Cancel asks the current run to stop at its next check point. If no
// run is in flight the next run is cancelled before it starts.
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// Reset clears run state so the engine can be reused: the cancel flag
// and the accounting tracker. Idempotent; pools call this before
// handing an engine out.
func (e *Engine) Reset() {
	e.cancelled.Store(false)
	e.tracker.Reset()
}

// Execute compiles source and runs it. Compilation is memoized by
// content hash in the engine's cache.
func (e *Engine) Execute(ctx context.Context, source string) (*Result, error) {
	script, err := e.cache.Source(source, e.cfg.CompileOptions)
	if err != nil {
		return nil, err
	}
	return e.ExecuteBytecode(ctx, script)
}

// ExecuteBytecode runs a compiled script. The script is not modified
// and may back concurrent runs on other engines.
func (e *Engine) ExecuteBytecode(ctx context.Context, script *compile.Script) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Accounting always starts clean, even after a failed prior run.
	e.tracker.Reset()

	if e.cancelled.Swap(false) {
		return nil, ErrCancelled
	}
	if err := e.checkDeclaredCapabilities(script.Metadata()); err != nil {
		return nil, err
	}

	runID := id.New(id.Run)
	if deadline := e.tracker.Limits().Timeout; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	rc := &RunContext{
		ctx:     ctx,
		runID:   runID,
		caps:    e.cfg.Capabilities,
		sandbox: e.box,
		tracker: e.tracker,
		host:    e.host,
		stdout:  e.cfg.Stdout,
	}

	e.state.Store(int32(StateRunning))
	defer e.state.Store(int32(StateIdle))

	e.log.Debug("run started", zap.String("run_id", runID))
	val, err := e.run(script.Program(), rc)
	usage := e.tracker.Usage()
	if err != nil {
		e.log.Debug("run failed",
			zap.String("run_id", runID),
			zap.Error(err),
			zap.Int64("instructions", usage.Instructions))
		return nil, err
	}
	e.log.Debug("run finished",
		zap.String("run_id", runID),
		zap.Int64("instructions", usage.Instructions),
		zap.Duration("elapsed", usage.Elapsed))
	return &Result{Value: val, Usage: usage, RunID: runID}, nil
}

// checkDeclaredCapabilities verifies "@require" declarations up front,
// so a script that states its needs fails before any instruction runs.
func (e *Engine) checkDeclaredCapabilities(meta compile.Metadata) error {
	for _, name := range meta.RequiredCapabilities {
		c, err := capability.Parse(name)
		if err != nil {
			return &compile.Error{Message: err.Error()}
		}
		if err := e.cfg.Capabilities.Require(c); err != nil {
			return err
		}
	}
	return nil
}
