// Package id generates prefixed, lexically sortable identifiers for
// engines and runs.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ====
// Kinds
// ====

// Kind selects the identifier prefix.
type Kind string

const (
	Engine Kind = "eng"
	Run    Kind = "run"
	Pool   Kind = "pool"
	Script Kind = "scr"
)

// ====
// Generation
// ====

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh identifier like "eng_01J8ZC4N...". IDs of the same
// kind generated by one process sort by creation time.
func New(kind Kind) string {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return fmt.Sprintf("%s_%s", kind, u.String())
}

// ====
// Validation
// ====

// Valid reports whether s is a well-formed identifier of the given kind.
func Valid(kind Kind, s string) bool {
	prefix := string(kind) + "_"
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	_, err := ulid.ParseStrict(s[len(prefix):])
	return err == nil
}
