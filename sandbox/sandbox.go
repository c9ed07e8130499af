// Package sandbox confines what a script may touch outside the process:
// filesystem paths, network hosts, and environment variables.
//
// Policy is default-deny. A target is reachable only if some allow rule
// matches it and no deny rule does; deny always wins, regardless of rule
// specificity or insertion order. Path rules are directory prefixes or
// doublestar glob patterns; host rules are exact names or glob patterns
// such as "*.internal.example".
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config declares the reachable surface. The zero value denies everything.
type Config struct {
	// ReadPaths are prefixes or glob patterns readable by scripts.
	ReadPaths []string
	// WritePaths are prefixes or glob patterns writable by scripts.
	WritePaths []string
	// DenyPaths override both allowlists. Deny wins.
	DenyPaths []string
	// AllowedHosts are exact host names or glob patterns for outbound
	// network access.
	AllowedHosts []string
	// EnvVars are the environment variable names scripts may read.
	EnvVars []string

	// AllowAllFs, AllowAllNet and AllowAllEnv open a whole dimension.
	// DenyPaths still apply to the filesystem.
	AllowAllFs  bool
	AllowAllNet bool
	AllowAllEnv bool
}

// Locked returns the zero policy: nothing is reachable.
func Locked() Config { return Config{} }

// Permissive returns an everything-open policy for trusted scripts.
func Permissive() Config {
	return Config{AllowAllFs: true, AllowAllNet: true, AllowAllEnv: true}
}

// WithReadPath returns a copy of c with p added to the read allowlist.
func (c Config) WithReadPath(p string) Config {
	c.ReadPaths = append(append([]string(nil), c.ReadPaths...), p)
	return c
}

// WithWritePath returns a copy of c with p added to the write allowlist.
func (c Config) WithWritePath(p string) Config {
	c.WritePaths = append(append([]string(nil), c.WritePaths...), p)
	return c
}

// WithDenyPath returns a copy of c with p added to the deny rules.
func (c Config) WithDenyPath(p string) Config {
	c.DenyPaths = append(append([]string(nil), c.DenyPaths...), p)
	return c
}

// WithHost returns a copy of c with h added to the allowed hosts.
func (c Config) WithHost(h string) Config {
	c.AllowedHosts = append(append([]string(nil), c.AllowedHosts...), h)
	return c
}

// WithEnvVar returns a copy of c with name added to the env allowlist.
func (c Config) WithEnvVar(name string) Config {
	c.EnvVars = append(append([]string(nil), c.EnvVars...), name)
	return c
}

// Sandbox evaluates targets against a Config. Stateless and safe for
// concurrent use.
type Sandbox struct {
	cfg Config
}

// New returns a sandbox enforcing cfg.
func New(cfg Config) *Sandbox { return &Sandbox{cfg: cfg} }

// Config returns the policy this sandbox enforces.
func (s *Sandbox) Config() Config { return s.cfg }

// CheckRead fails with a DeniedError unless path is readable.
func (s *Sandbox) CheckRead(path string) error {
	return s.checkPath(path, "read", s.cfg.ReadPaths)
}

// CheckWrite fails with a DeniedError unless path is writable.
func (s *Sandbox) CheckWrite(path string) error {
	return s.checkPath(path, "write", s.cfg.WritePaths)
}

func (s *Sandbox) checkPath(path, op string, allow []string) error {
	clean := filepath.Clean(path)
	// Deny first so a deny rule beats AllowAllFs and any allow match.
	for _, d := range s.cfg.DenyPaths {
		if pathMatches(d, clean) {
			return &DeniedError{Op: op, Target: path, Rule: d, Denied: true}
		}
	}
	if s.cfg.AllowAllFs {
		return nil
	}
	for _, a := range allow {
		if pathMatches(a, clean) {
			return nil
		}
	}
	return &DeniedError{Op: op, Target: path}
}

// CheckHost fails with a DeniedError unless host is reachable. A port
// suffix on the target is ignored.
func (s *Sandbox) CheckHost(host string) error {
	h := host
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h[i+1:], "]") {
		h = h[:i]
	}
	// Bracketed IPv6 literals match on the bare address; brackets would
	// otherwise read as a glob character class.
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	h = strings.ToLower(strings.TrimSuffix(h, "."))
	if s.cfg.AllowAllNet {
		return nil
	}
	for _, pat := range s.cfg.AllowedHosts {
		if hostMatches(strings.ToLower(pat), h) {
			return nil
		}
	}
	return &DeniedError{Op: "net", Target: host}
}

// CheckEnv fails with a DeniedError unless the variable is readable.
func (s *Sandbox) CheckEnv(name string) error {
	if s.cfg.AllowAllEnv {
		return nil
	}
	for _, v := range s.cfg.EnvVars {
		if v == name {
			return nil
		}
	}
	return &DeniedError{Op: "env", Target: name}
}

// pathMatches reports whether rule covers path. A rule containing glob
// metacharacters is matched with doublestar; otherwise it is a prefix
// rule covering the directory and everything under it.
func pathMatches(rule, path string) bool {
	rule = filepath.Clean(rule)
	if strings.ContainsAny(rule, "*?[{") {
		ok, err := doublestar.Match(rule, path)
		return err == nil && ok
	}
	if path == rule {
		return true
	}
	return strings.HasPrefix(path, rule+string(filepath.Separator))
}

func hostMatches(pat, host string) bool {
	if strings.ContainsAny(pat, "*?[{") {
		ok, err := doublestar.Match(pat, host)
		return err == nil && ok
	}
	return pat == host
}

// DeniedError reports a target blocked by sandbox policy. Denied marks a
// hit on an explicit deny rule rather than a missing allow rule.
type DeniedError struct {
	Op     string // "read", "write", "net" or "env"
	Target string
	Rule   string
	Denied bool
}

func (e *DeniedError) Error() string {
	if e.Denied {
		return fmt.Sprintf("sandbox denied %s of %q (deny rule %q)", e.Op, e.Target, e.Rule)
	}
	return fmt.Sprintf("sandbox denied %s of %q (not in allowlist)", e.Op, e.Target)
}
