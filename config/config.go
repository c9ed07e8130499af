// Package config loads runtime settings from FUSABI_* environment
// variables and optional YAML policy files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/engine"
	"github.com/fusabi-lang/fusabi-host/limits"
	"github.com/fusabi-lang/fusabi-host/pool"
	"github.com/fusabi-lang/fusabi-host/sandbox"
)

// Config is the externally tunable surface of the runtime.
type Config struct {
	// Pool sizing and acquisition.
	PoolSize       int           `envconfig:"POOL_SIZE" yaml:"pool_size" default:"4"`
	AcquireTimeout time.Duration `envconfig:"ACQUIRE_TIMEOUT" yaml:"acquire_timeout" default:"30s"`
	LazyInit       bool          `envconfig:"LAZY_INIT" yaml:"lazy_init" default:"false"`

	// Per-run limits. Zero means unlimited for that dimension.
	Timeout         time.Duration `envconfig:"TIMEOUT" yaml:"timeout" default:"5s"`
	MaxMemory       int64         `envconfig:"MAX_MEMORY" yaml:"max_memory" default:"67108864"`
	MaxInstructions int64         `envconfig:"MAX_INSTRUCTIONS" yaml:"max_instructions" default:"10000000"`
	MaxStackDepth   int           `envconfig:"MAX_STACK_DEPTH" yaml:"max_stack_depth" default:"256"`
	MaxOutputBytes  int64         `envconfig:"MAX_OUTPUT_BYTES" yaml:"max_output_bytes" default:"1048576"`

	// Grants and sandbox policy.
	Capabilities []string `envconfig:"CAPABILITIES" yaml:"capabilities"`
	ReadPaths    []string `envconfig:"READ_PATHS" yaml:"read_paths"`
	WritePaths   []string `envconfig:"WRITE_PATHS" yaml:"write_paths"`
	DenyPaths    []string `envconfig:"DENY_PATHS" yaml:"deny_paths"`
	AllowedHosts []string `envconfig:"ALLOWED_HOSTS" yaml:"allowed_hosts"`
	EnvVars      []string `envconfig:"ENV_VARS" yaml:"env_vars"`

	// Logging.
	LogLevel string `envconfig:"LOG_LEVEL" yaml:"log_level" default:"info"`
}

// Load reads configuration from FUSABI_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("fusabi", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault returns the environment configuration, or the defaults
// if the environment is unusable.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		PoolSize:        4,
		AcquireTimeout:  30 * time.Second,
		Timeout:         5 * time.Second,
		MaxMemory:       64 << 20,
		MaxInstructions: 10_000_000,
		MaxStackDepth:   256,
		MaxOutputBytes:  1 << 20,
		LogLevel:        "info",
	}
}

// LoadFile reads a YAML policy file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Limits materializes the per-run ceilings.
func (c *Config) Limits() limits.Limits {
	return limits.Limits{
		Timeout:         c.Timeout,
		MaxMemory:       c.MaxMemory,
		MaxInstructions: c.MaxInstructions,
		MaxStackDepth:   c.MaxStackDepth,
		MaxOutputBytes:  c.MaxOutputBytes,
	}
}

// CapabilitySet parses the configured capability names. Unknown names
// fail rather than silently granting nothing.
func (c *Config) CapabilitySet() (capability.Set, error) {
	set := capability.None()
	for _, name := range c.Capabilities {
		parsed, err := capability.Parse(name)
		if err != nil {
			return capability.None(), fmt.Errorf("config capability: %w", err)
		}
		set = set.With(parsed)
	}
	return set, nil
}

// SandboxConfig materializes the target policy.
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		ReadPaths:    c.ReadPaths,
		WritePaths:   c.WritePaths,
		DenyPaths:    c.DenyPaths,
		AllowedHosts: c.AllowedHosts,
		EnvVars:      c.EnvVars,
	}
}

// PoolConfig materializes the full pool configuration.
func (c *Config) PoolConfig() (pool.Config, error) {
	caps, err := c.CapabilitySet()
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		Size:           c.PoolSize,
		AcquireTimeout: c.AcquireTimeout,
		LazyInit:       c.LazyInit,
		Engine: engine.Config{
			Limits:       c.Limits(),
			Capabilities: caps,
			Sandbox:      c.SandboxConfig(),
		},
	}, nil
}
