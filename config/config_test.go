package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusabi-lang/fusabi-host/capability"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, int64(64<<20), cfg.MaxMemory)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Capabilities)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FUSABI_POOL_SIZE", "12")
	t.Setenv("FUSABI_TIMEOUT", "2s")
	t.Setenv("FUSABI_CAPABILITIES", "time:read,logging")
	t.Setenv("FUSABI_ALLOWED_HOSTS", "api.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"time:read", "logging"}, cfg.Capabilities)
	assert.Equal(t, []string{"api.example.com"}, cfg.AllowedHosts)
}

func TestLoadDefaultsApply(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, int64(10_000_000), cfg.MaxInstructions)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("FUSABI_POOL_SIZE", "not a number")
	cfg := LoadOrDefault()
	assert.Equal(t, 4, cfg.PoolSize)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool_size: 8
timeout: 1s
capabilities:
  - fs:read
read_paths:
  - /data
deny_paths:
  - /data/secrets
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, []string{"fs:read"}, cfg.Capabilities)
	assert.Equal(t, []string{"/data"}, cfg.ReadPaths)
	assert.Equal(t, int64(64<<20), cfg.MaxMemory, "unset fields keep defaults")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("pool_size: [not an int"), 0o644))
	_, err = LoadFile(badPath)
	assert.Error(t, err)
}

func TestCapabilitySet(t *testing.T) {
	cfg := Default()
	cfg.Capabilities = []string{"fs:read", "net:request"}

	set, err := cfg.CapabilitySet()
	require.NoError(t, err)
	assert.True(t, set.Has(capability.FsRead))
	assert.True(t, set.Has(capability.NetRequest))
	assert.False(t, set.Has(capability.FsWrite))

	cfg.Capabilities = []string{"no:such"}
	_, err = cfg.CapabilitySet()
	assert.Error(t, err)
}

func TestPoolConfig(t *testing.T) {
	cfg := Default()
	cfg.PoolSize = 2
	cfg.Capabilities = []string{"time:read"}
	cfg.ReadPaths = []string{"/data"}

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, pc.Size)
	assert.True(t, pc.Engine.Capabilities.Has(capability.TimeRead))
	assert.Equal(t, []string{"/data"}, pc.Engine.Sandbox.ReadPaths)
	assert.Equal(t, cfg.Timeout, pc.Engine.Limits.Timeout)

	cfg.Capabilities = []string{"bogus"}
	_, err = cfg.PoolConfig()
	assert.Error(t, err)
}
