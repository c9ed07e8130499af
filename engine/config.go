package engine

import (
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/compile"
	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/sandbox"
)

// Config configures one engine. The zero value is usable: no
// capabilities, everything sandboxed, default limits applied by New.
type Config struct {
	// Limits are the per-run resource ceilings.
	Limits limits.Limits
	// Capabilities is the script's permission grant.
	Capabilities capability.Set
	// Sandbox confines filesystem, network, and environment access.
	Sandbox sandbox.Config
	// CompileOptions apply when Execute compiles source.
	CompileOptions compile.Options
	// Stdout receives script print output. Defaults to io.Discard.
	Stdout io.Writer
	// NetLimiter, when set, throttles network host calls.
	NetLimiter *rate.Limiter
	// Cache, when set, memoizes Execute's compilations. Engines in one
	// pool usually share a cache.
	Cache *compile.Cache
	// Logger receives engine diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns the safe starting point: default limits, the
// side-effect-free capability grant, and a locked sandbox.
func DefaultConfig() Config {
	return Config{
		Limits:       limits.Default(),
		Capabilities: capability.SafeDefaults(),
		Sandbox:      sandbox.Locked(),
	}
}
