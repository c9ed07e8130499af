package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneGrantsNothing(t *testing.T) {
	s := None()
	assert.True(t, s.IsEmpty())
	for _, c := range List() {
		assert.False(t, s.Has(c), "none must not grant %s", c)
	}
}

func TestSafeDefaults(t *testing.T) {
	s := SafeDefaults()
	assert.True(t, s.Has(TimeRead))
	assert.True(t, s.Has(Random))
	assert.True(t, s.Has(Logging))
	assert.False(t, s.Has(FsRead))
	assert.False(t, s.Has(NetRequest))
	for _, c := range s.Slice() {
		assert.False(t, c.IsDangerous(), "safe defaults must not include %s", c)
	}
}

func TestAllGrantsEverything(t *testing.T) {
	s := All()
	for _, c := range List() {
		assert.True(t, s.Has(c))
	}
	assert.Equal(t, len(List()), s.Len())
}

func TestWithIsImmutable(t *testing.T) {
	base := None()
	derived := base.With(FsRead, NetRequest)

	assert.False(t, base.Has(FsRead), "With must not mutate the receiver")
	assert.True(t, derived.Has(FsRead))
	assert.True(t, derived.Has(NetRequest))
	assert.False(t, derived.Has(FsWrite))
}

func TestWithout(t *testing.T) {
	s := All().Without(ProcessExec, NetListen)
	assert.False(t, s.Has(ProcessExec))
	assert.False(t, s.Has(NetListen))
	assert.True(t, s.Has(FsRead))
}

func TestRequire(t *testing.T) {
	err := None().Require(NetRequest)
	require.Error(t, err)

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, NetRequest, denied.Capability)
	assert.Contains(t, err.Error(), "net:request")

	assert.NoError(t, Of(NetRequest).Require(NetRequest))
}

func TestMergeIntersect(t *testing.T) {
	a := Of(FsRead, TimeRead)
	b := Of(TimeRead, NetRequest)

	m := a.Merge(b)
	assert.True(t, m.Has(FsRead))
	assert.True(t, m.Has(NetRequest))

	i := a.Intersect(b)
	assert.True(t, i.Has(TimeRead))
	assert.False(t, i.Has(FsRead))
	assert.False(t, i.Has(NetRequest))
}

func TestNameRoundTrip(t *testing.T) {
	for _, c := range List() {
		parsed, err := Parse(c.String())
		require.NoError(t, err, "parse %s", c)
		assert.Equal(t, c, parsed)
	}

	_, err := Parse("fs:mount")
	assert.Error(t, err)
}

func TestDangerous(t *testing.T) {
	assert.True(t, ProcessExec.IsDangerous())
	assert.True(t, FsWrite.IsDangerous())
	assert.False(t, FsRead.IsDangerous())
	assert.False(t, Logging.IsDangerous())
}
