package hostctx

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNoop(t *testing.T) {
	var ctx Context = Noop{}
	ctx.Log(LevelInfo, "ignored")
	ctx.RecordMetric("x", 1)
	assert.False(t, ctx.ShouldCancel())
}

func TestFuncs(t *testing.T) {
	var gotLevel Level
	var gotMsg string
	f := Funcs{
		LogFunc:    func(level Level, msg string) { gotLevel, gotMsg = level, msg },
		CancelFunc: func() bool { return true },
	}
	f.Log(LevelWarn, "careful")
	assert.Equal(t, LevelWarn, gotLevel)
	assert.Equal(t, "careful", gotMsg)
	assert.True(t, f.ShouldCancel())

	empty := Funcs{}
	empty.Log(LevelInfo, "no panic")
	empty.RecordMetric("x", 1)
	assert.False(t, empty.ShouldCancel())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	Info(r, "hello")
	Error(r, "boom")
	Gauge(r, "depth", 3, Tag{Key: "pool", Value: "a"})

	logs := r.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, LevelInfo, logs[0].Level)
	assert.Equal(t, "boom", logs[1].Msg)

	metrics := r.Metrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, "depth", metrics[0].Name)
	assert.Equal(t, 3.0, metrics[0].Value)

	assert.False(t, r.ShouldCancel())
	r.Cancel()
	assert.True(t, r.ShouldCancel())
}

func TestCancellable(t *testing.T) {
	inner := NewRecorder()
	c := NewCancellable(inner)

	assert.False(t, c.ShouldCancel())
	c.Cancel()
	assert.True(t, c.ShouldCancel())
	c.Reset()
	assert.False(t, c.ShouldCancel())

	inner.Cancel()
	assert.True(t, c.ShouldCancel(), "inner cancellation passes through")

	c.Log(LevelInfo, "fwd")
	assert.Len(t, inner.Logs(), 1)
}

func TestZapForwardsLevels(t *testing.T) {
	core, observed := observer.New(zap.DebugLevel)
	z := NewZap(zap.New(core))

	z.Log(LevelInfo, "hello")
	z.Log(LevelError, "boom")
	z.RecordMetric("latency", 1.5)

	entries := observed.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, zap.DebugLevel, entries[2].Level)
	assert.False(t, z.ShouldCancel())
}

func TestPrometheusDelegates(t *testing.T) {
	reg := prometheus.NewRegistry()
	inner := NewRecorder()
	p := NewPrometheus(reg, inner)

	p.Log(LevelWarn, "w")
	p.RecordMetric("queue_depth", 7, Tag{Key: "q", Value: "main"})

	assert.Len(t, inner.Logs(), 1)
	assert.Len(t, inner.Metrics(), 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fusabi_script_log_lines_total"])
	assert.True(t, names["fusabi_script_metric_value"])
}

func TestFlattenTagsStable(t *testing.T) {
	a := flattenTags([]Tag{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}})
	b := flattenTags([]Tag{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "a=1,b=2", a)
}
