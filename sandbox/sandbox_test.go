package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDeny(t *testing.T) {
	s := New(Locked())
	assert.Error(t, s.CheckRead("/etc/hosts"))
	assert.Error(t, s.CheckWrite("/tmp/out"))
	assert.Error(t, s.CheckHost("example.com"))
	assert.Error(t, s.CheckEnv("HOME"))
}

func TestPermissive(t *testing.T) {
	s := New(Permissive())
	assert.NoError(t, s.CheckRead("/etc/hosts"))
	assert.NoError(t, s.CheckWrite("/anywhere"))
	assert.NoError(t, s.CheckHost("example.com"))
	assert.NoError(t, s.CheckEnv("HOME"))
}

func TestPrefixAllow(t *testing.T) {
	s := New(Locked().WithReadPath("/data"))
	assert.NoError(t, s.CheckRead("/data/file.txt"))
	assert.NoError(t, s.CheckRead("/data/sub/deep.txt"))
	assert.NoError(t, s.CheckRead("/data"))
	assert.Error(t, s.CheckRead("/database/file.txt"), "prefix match is per path segment")
	assert.Error(t, s.CheckWrite("/data/file.txt"), "read grant does not imply write")
}

func TestGlobRules(t *testing.T) {
	s := New(Locked().WithReadPath("/logs/**/*.log"))
	assert.NoError(t, s.CheckRead("/logs/app/today.log"))
	assert.Error(t, s.CheckRead("/logs/app/today.txt"))
}

func TestDenyWins(t *testing.T) {
	s := New(Locked().
		WithReadPath("/data").
		WithDenyPath("/data/secrets"))

	assert.NoError(t, s.CheckRead("/data/public.txt"))

	err := s.CheckRead("/data/secrets/key.pem")
	require.Error(t, err)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.True(t, denied.Denied)
	assert.Equal(t, "/data/secrets", denied.Rule)
}

func TestDenyWinsOverAllowAll(t *testing.T) {
	s := New(Config{AllowAllFs: true, DenyPaths: []string{"/etc"}})
	assert.NoError(t, s.CheckRead("/home/user/file"))
	assert.Error(t, s.CheckRead("/etc/shadow"))
	assert.Error(t, s.CheckWrite("/etc/passwd"))
}

func TestDenyBeatsMoreSpecificAllow(t *testing.T) {
	// Order and specificity are irrelevant: any deny hit blocks.
	s := New(Locked().
		WithReadPath("/data/secrets/public.txt").
		WithDenyPath("/data/secrets"))
	assert.Error(t, s.CheckRead("/data/secrets/public.txt"))
}

func TestHosts(t *testing.T) {
	s := New(Locked().WithHost("api.example.com").WithHost("*.internal.example"))

	assert.NoError(t, s.CheckHost("api.example.com"))
	assert.NoError(t, s.CheckHost("API.Example.COM"), "host match is case-insensitive")
	assert.NoError(t, s.CheckHost("api.example.com:8443"), "port is ignored")
	assert.NoError(t, s.CheckHost("db.internal.example"))
	assert.Error(t, s.CheckHost("evil.com"))
	assert.Error(t, s.CheckHost("internal.example"), "wildcard requires a subdomain label")
}

func TestIPv6Hosts(t *testing.T) {
	s := New(Locked().WithHost("::1").WithHost("2001:db8::2"))

	assert.NoError(t, s.CheckHost("[::1]"), "brackets are not part of the address")
	assert.NoError(t, s.CheckHost("[::1]:8080"), "port is ignored")
	assert.NoError(t, s.CheckHost("[2001:db8::2]:443"))
	assert.Error(t, s.CheckHost("[2001:db8::3]"))
}

func TestEnvAllowlist(t *testing.T) {
	s := New(Locked().WithEnvVar("LANG"))
	assert.NoError(t, s.CheckEnv("LANG"))
	assert.Error(t, s.CheckEnv("AWS_SECRET_ACCESS_KEY"))
}

func TestBuildersDoNotMutate(t *testing.T) {
	base := Locked()
	derived := base.WithReadPath("/data")
	assert.Empty(t, base.ReadPaths)
	assert.Len(t, derived.ReadPaths, 1)
}

func TestPathTraversalNormalized(t *testing.T) {
	s := New(Locked().WithReadPath("/data").WithDenyPath("/data/secrets"))
	assert.Error(t, s.CheckRead("/data/../etc/passwd"), "cleaned path leaves the allowlist")
	assert.Error(t, s.CheckRead("/data/sub/../secrets/key"), "cleaned path hits the deny rule")
}
