package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(New(Engine), "eng_"))
	assert.True(t, strings.HasPrefix(New(Run), "run_"))
	assert.True(t, strings.HasPrefix(New(Pool), "pool_"))
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := New(Run)
		assert.False(t, seen[s], "duplicate id %s", s)
		seen[s] = true
	}
}

func TestValid(t *testing.T) {
	s := New(Engine)
	assert.True(t, Valid(Engine, s))
	assert.False(t, Valid(Run, s), "wrong kind")
	assert.False(t, Valid(Engine, "eng_notaulid"))
	assert.False(t, Valid(Engine, "plainstring"))
}

func TestSortable(t *testing.T) {
	a := New(Run)
	b := New(Run)
	assert.Less(t, a, b, "monotonic entropy keeps same-process ids ordered")
}
