// Package fusabihost embeds a capability-sandboxed script runtime.
//
// The runtime compiles a small script language to bytecode and executes
// it under explicit grants and ceilings: a capability set gates every
// privileged host call, a sandbox confines filesystem, network, and
// environment targets, and per-run limits bound instructions, wall
// clock, memory, and I/O. A fixed-size engine pool multiplexes runs
// across goroutines with atomic hand-off and arrival-order fairness.
//
// Typical embedding:
//
//	p, err := pool.New(pool.Config{
//		Size: 8,
//		Engine: engine.Config{
//			Limits:       limits.Default(),
//			Capabilities: capability.SafeDefaults(),
//			Sandbox:      sandbox.Locked().WithReadPath("/data"),
//		},
//	})
//	if err != nil {
//		return err
//	}
//	defer p.Shutdown()
//	res, err := p.Execute(ctx, `1 + 2`)
//
// The subpackages compose freely: a single engine works without a pool,
// compiled scripts are immutable and shareable across engines, and the
// hostctx implementations bridge script logs and metrics into zap and
// prometheus.
package fusabihost

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/pool"
)

// Version is this module's release version.
const Version = "0.19.0"

// The range of script language versions this runtime accepts, both
// inclusive on the minor.
const (
	minLangMinor = 18
	maxLangMinor = 19
)

// IsCompatibleVersion reports whether a script toolchain version like
// "0.18.3" is supported by this runtime.
func IsCompatibleVersion(v string) bool {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	if len(parts) < 2 || parts[0] != "0" {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return minor >= minLangMinor && minor <= maxLangMinor
}

// IsTransient reports whether retrying the same call later could
// succeed: pool exhaustion, acquire timeouts, and wall-clock or
// cancellation outcomes.
func IsTransient(err error) bool {
	if errors.Is(err, pool.ErrExhausted) || errors.Is(err, pool.ErrAcquireTimeout) {
		return true
	}
	var v *limits.Violation
	if errors.As(err, &v) {
		return v.Kind == limits.KindTimeout
	}
	return false
}

// IsFatal reports whether the error means the owning pool or engine is
// no longer usable.
func IsFatal(err error) bool {
	return errors.Is(err, pool.ErrClosed) || errors.Is(err, pool.ErrInvalidConfig)
}

// RuntimeVersion renders the module identity for diagnostics.
func RuntimeVersion() string {
	return fmt.Sprintf("fusabi-host %s (lang 0.%d-0.%d)", Version, minLangMinor, maxLangMinor)
}
