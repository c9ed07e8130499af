// Package monitoring exposes pool and engine metrics through prometheus
// and keeps a cheap in-process snapshot for health endpoints.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the collector set for one pool. Register one Metrics per
// registry; engines and pools share it.
type Metrics struct {
	executions  *prometheus.CounterVec
	execSeconds prometheus.Histogram
	waitSeconds prometheus.Histogram
	enginesBusy prometheus.Gauge
	enginesFree prometheus.Gauge

	mu   sync.RWMutex
	snap Snapshot
}

// Snapshot is the in-process mirror of the counters, cheap to read on
// a hot path.
type Snapshot struct {
	Executions    map[string]int64
	TotalExecTime time.Duration
	TotalWaitTime time.Duration
	EnginesBusy   int
	EnginesFree   int
}

// New registers the collector set on reg (prometheus.DefaultRegisterer
// when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fusabi",
			Subsystem: "pool",
			Name:      "executions_total",
			Help:      "Script executions by outcome.",
		}, []string{"outcome"}),
		execSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fusabi",
			Subsystem: "pool",
			Name:      "execution_seconds",
			Help:      "Script execution duration.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		waitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fusabi",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time callers waited for a free engine.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		enginesBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusabi",
			Subsystem: "pool",
			Name:      "engines_busy",
			Help:      "Engines currently checked out.",
		}),
		enginesFree: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusabi",
			Subsystem: "pool",
			Name:      "engines_free",
			Help:      "Engines currently idle in the pool.",
		}),
		snap: Snapshot{Executions: map[string]int64{}},
	}
}

// ObserveExecution records one finished run.
func (m *Metrics) ObserveExecution(outcome string, d time.Duration) {
	m.executions.WithLabelValues(outcome).Inc()
	m.execSeconds.Observe(d.Seconds())

	m.mu.Lock()
	m.snap.Executions[outcome]++
	m.snap.TotalExecTime += d
	m.mu.Unlock()
}

// ObserveAcquireWait records how long a caller waited for an engine.
func (m *Metrics) ObserveAcquireWait(d time.Duration) {
	m.waitSeconds.Observe(d.Seconds())

	m.mu.Lock()
	m.snap.TotalWaitTime += d
	m.mu.Unlock()
}

// SetEngineCounts updates the busy/free gauges.
func (m *Metrics) SetEngineCounts(busy, free int) {
	m.enginesBusy.Set(float64(busy))
	m.enginesFree.Set(float64(free))

	m.mu.Lock()
	m.snap.EnginesBusy = busy
	m.snap.EnginesFree = free
	m.mu.Unlock()
}

// GetSnapshot returns a copy of the in-process mirror.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.snap
	out.Executions = make(map[string]int64, len(m.snap.Executions))
	for k, v := range m.snap.Executions {
		out.Executions[k] = v
	}
	return out
}
