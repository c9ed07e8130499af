// Package pool multiplexes script execution across a fixed set of
// engines.
//
// The free list is a buffered channel: an engine is either in the
// channel or checked out by exactly one borrower, never both, so
// release and waiter wake-up are a single atomic hand-off with no
// window in which a free engine and a parked waiter can coexist.
// Blocked acquirers are served in arrival order. Engines are reset
// before reuse, so no state leaks between borrowers.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/compile"
	"github.com/fusabi-lang/fusabi-host/engine"
	"github.com/fusabi-lang/fusabi-host/hostctx"
	"github.com/fusabi-lang/fusabi-host/internal/id"
	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/monitoring"
	"github.com/fusabi-lang/fusabi-host/sandbox"
)

var (
	// ErrInvalidConfig reports an unusable pool configuration, such as
	// a worker count below one.
	ErrInvalidConfig = errors.New("invalid pool config")
	// ErrClosed reports an operation on a shut-down pool.
	ErrClosed = errors.New("pool is closed")
	// ErrExhausted reports that TryAcquire found no free engine.
	ErrExhausted = errors.New("no engine available")
	// ErrAcquireTimeout reports that Acquire gave up waiting.
	ErrAcquireTimeout = errors.New("timed out waiting for an engine")
)

const defaultAcquireTimeout = 30 * time.Second

// waitWindow is the rolling sample count behind IsHealthy.
const waitWindow = 64

// Config configures a pool.
type Config struct {
	// Size is the number of engines. Must be at least 1.
	Size int
	// Engine is the template configuration for every engine.
	Engine engine.Config
	// HostContext backs every engine. Nil behaves like hostctx.Noop.
	HostContext hostctx.Context
	// AcquireTimeout bounds how long Acquire waits. Defaults to 30s.
	AcquireTimeout time.Duration
	// LazyInit defers engine construction until first demand.
	LazyInit bool
	// Metrics, when set, receives pool observations.
	Metrics *monitoring.Metrics
	// Logger receives pool diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Stats is a point-in-time view of cumulative pool activity.
type Stats struct {
	Size          int
	Available     int
	Created       int64
	Acquisitions  int64
	Releases      int64
	Timeouts      int64
	Executions    int64
	Successes     int64
	Failures      int64
	Cancellations int64
	LimitHits     int64
	TotalExecTime time.Duration
	MeanWait      time.Duration
}

// Pool is a fixed-size engine pool. Safe for concurrent use.
type Pool struct {
	id   string
	cfg  Config
	free chan *engine.Engine
	log  *zap.Logger

	// closed is guarded by mu; Release sends while holding the read
	// lock so Shutdown's close of the channel cannot race a send.
	mu     sync.RWMutex
	closed bool

	created       atomic.Int64
	acquisitions  atomic.Int64
	releases      atomic.Int64
	timeouts      atomic.Int64
	executions    atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	cancellations atomic.Int64
	limitHits     atomic.Int64
	execNanos     atomic.Int64

	waitMu   sync.Mutex
	waits    [waitWindow]float64 // seconds
	waitPos  int
	waitSeen int
}

// New builds a pool. Unless LazyInit is set, all engines are created
// up front; with LazyInit they are created on demand up to Size.
func New(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, ErrInvalidConfig
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Engine.Cache == nil {
		// One cache for the whole pool, so a script compiles once no
		// matter which engine runs it.
		cfg.Engine.Cache = compile.NewCache()
	}

	poolID := id.New(id.Pool)
	p := &Pool{
		id:   poolID,
		cfg:  cfg,
		free: make(chan *engine.Engine, cfg.Size),
		log:  cfg.Logger.Named("pool").With(zap.String("pool_id", poolID)),
	}
	if !cfg.LazyInit {
		for i := 0; i < cfg.Size; i++ {
			p.free <- p.newEngine()
		}
	}
	p.log.Info("pool created",
		zap.Int("size", cfg.Size),
		zap.Bool("lazy", cfg.LazyInit))
	return p, nil
}

func (p *Pool) newEngine() *engine.Engine {
	p.created.Add(1)
	return engine.WithContext(p.cfg.Engine, p.cfg.HostContext)
}

// ID returns the pool's identifier.
func (p *Pool) ID() string { return p.id }

// Size returns the configured engine count.
func (p *Pool) Size() int { return p.cfg.Size }

// Handle is a checked-out engine. Release returns it to the pool;
// releasing twice is a no-op.
type Handle struct {
	pool *Pool
	eng  *engine.Engine
	once sync.Once
}

// Engine returns the borrowed engine.
func (h *Handle) Engine() *engine.Engine { return h.eng }

// Release returns the engine to the pool, reset for the next borrower.
func (h *Handle) Release() {
	h.once.Do(func() { h.pool.release(h.eng) })
}

// Acquire checks out an engine, waiting up to the configured acquire
// timeout for one to free up. Waiters are served in arrival order.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.IsShutdown() {
		return nil, ErrClosed
	}
	start := time.Now()

	// Fast path: an engine is already free.
	select {
	case eng, ok := <-p.free:
		if !ok {
			return nil, ErrClosed
		}
		return p.checkedOut(eng, start), nil
	default:
	}

	if eng := p.tryLazyCreate(); eng != nil {
		return p.checkedOut(eng, start), nil
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case eng, ok := <-p.free:
		if !ok {
			return nil, ErrClosed
		}
		return p.checkedOut(eng, start), nil
	case <-timer.C:
		p.timeouts.Add(1)
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire checks out an engine without waiting.
func (p *Pool) TryAcquire() (*Handle, error) {
	if p.IsShutdown() {
		return nil, ErrClosed
	}
	select {
	case eng, ok := <-p.free:
		if !ok {
			return nil, ErrClosed
		}
		return p.checkedOut(eng, time.Now()), nil
	default:
	}
	if eng := p.tryLazyCreate(); eng != nil {
		return p.checkedOut(eng, time.Now()), nil
	}
	return nil, ErrExhausted
}

// tryLazyCreate builds a new engine if the pool is lazy and under its
// size cap.
func (p *Pool) tryLazyCreate() *engine.Engine {
	if !p.cfg.LazyInit {
		return nil
	}
	for {
		n := p.created.Load()
		if n >= int64(p.cfg.Size) {
			return nil
		}
		if p.created.CompareAndSwap(n, n+1) {
			return engine.WithContext(p.cfg.Engine, p.cfg.HostContext)
		}
	}
}

func (p *Pool) checkedOut(eng *engine.Engine, start time.Time) *Handle {
	wait := time.Since(start)
	p.acquisitions.Add(1)
	p.recordWait(wait)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ObserveAcquireWait(wait)
		p.cfg.Metrics.SetEngineCounts(p.cfg.Size-len(p.free), len(p.free))
	}
	return &Handle{pool: p, eng: eng}
}

func (p *Pool) release(eng *engine.Engine) {
	// Reset before the engine becomes visible to the next borrower.
	eng.Reset()
	p.releases.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	// Cannot block: every engine out of the channel has exactly one
	// borrower, so capacity Size always has room.
	p.free <- eng
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SetEngineCounts(p.cfg.Size-len(p.free), len(p.free))
	}
}

func (p *Pool) recordWait(d time.Duration) {
	p.waitMu.Lock()
	p.waits[p.waitPos] = d.Seconds()
	p.waitPos = (p.waitPos + 1) % waitWindow
	if p.waitSeen < waitWindow {
		p.waitSeen++
	}
	p.waitMu.Unlock()
}

func (p *Pool) meanWait() time.Duration {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()
	if p.waitSeen == 0 {
		return 0
	}
	mean := stat.Mean(p.waits[:p.waitSeen], nil)
	return time.Duration(mean * float64(time.Second))
}

// Execute borrows an engine, compiles and runs source on it, and
// returns the engine to the pool.
func (p *Pool) Execute(ctx context.Context, source string) (*engine.Result, error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return p.observe(h.Engine().Execute(ctx, source))
}

// ExecuteBytecode borrows an engine and runs an already-compiled
// script on it.
func (p *Pool) ExecuteBytecode(ctx context.Context, script *compile.Script) (*engine.Result, error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return p.observe(h.Engine().ExecuteBytecode(ctx, script))
}

func (p *Pool) observe(res *engine.Result, err error) (*engine.Result, error) {
	p.executions.Add(1)
	outcome := classify(err)
	switch outcome {
	case "success":
		p.successes.Add(1)
	case "cancelled":
		p.cancellations.Add(1)
	case "limit":
		p.limitHits.Add(1)
	default:
		p.failures.Add(1)
	}
	var elapsed time.Duration
	if res != nil {
		elapsed = res.Usage.Elapsed
		p.execNanos.Add(int64(elapsed))
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ObserveExecution(outcome, elapsed)
	}
	return res, err
}

func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, engine.ErrCancelled):
		return "cancelled"
	default:
	}
	var violation *limits.Violation
	if errors.As(err, &violation) {
		return "limit"
	}
	var capDenied *capability.DeniedError
	var boxDenied *sandbox.DeniedError
	if errors.As(err, &capDenied) || errors.As(err, &boxDenied) {
		return "denied"
	}
	var compileErr *compile.Error
	if errors.As(err, &compileErr) {
		return "compile_error"
	}
	return "error"
}

// Stats returns cumulative counters and the current mean acquire wait.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:          p.cfg.Size,
		Available:     len(p.free),
		Created:       p.created.Load(),
		Acquisitions:  p.acquisitions.Load(),
		Releases:      p.releases.Load(),
		Timeouts:      p.timeouts.Load(),
		Executions:    p.executions.Load(),
		Successes:     p.successes.Load(),
		Failures:      p.failures.Load(),
		Cancellations: p.cancellations.Load(),
		LimitHits:     p.limitHits.Load(),
		TotalExecTime: time.Duration(p.execNanos.Load()),
		MeanWait:      p.meanWait(),
	}
}

// IsHealthy reports whether the pool is open and acquire waits stay
// well under the acquire timeout.
func (p *Pool) IsHealthy() bool {
	if p.IsShutdown() {
		return false
	}
	return p.meanWait() < p.cfg.AcquireTimeout/2
}

// IsShutdown reports whether Shutdown has completed.
func (p *Pool) IsShutdown() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Shutdown closes the pool. Pending and future acquirers get ErrClosed;
// engines still checked out are discarded when released. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.free)
	p.mu.Unlock()

	drained := 0
	for range p.free {
		drained++
	}
	p.log.Info("pool shut down",
		zap.Int("drained", drained),
		zap.Int64("executions", p.executions.Load()))
}
