package hostctx

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Context that exposes script metrics through a
// prometheus registry. Script log lines are counted by level; metric
// samples feed a gauge vector labeled by metric name and flattened tags.
type Prometheus struct {
	inner Context

	logLines *prometheus.CounterVec
	samples  *prometheus.GaugeVec
}

// NewPrometheus returns a prometheus-backed context registering its
// collectors on reg (prometheus.DefaultRegisterer when nil). Logging and
// cancellation delegate to inner; a nil inner behaves like Noop.
func NewPrometheus(reg prometheus.Registerer, inner Context) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if inner == nil {
		inner = Noop{}
	}
	p := &Prometheus{
		inner: inner,
		logLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fusabi",
			Subsystem: "script",
			Name:      "log_lines_total",
			Help:      "Script log lines by level.",
		}, []string{"level"}),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fusabi",
			Subsystem: "script",
			Name:      "metric_value",
			Help:      "Latest value recorded per script metric.",
		}, []string{"name", "tags"}),
	}
	reg.MustRegister(p.logLines, p.samples)
	return p
}

func (p *Prometheus) Log(level Level, msg string) {
	p.logLines.WithLabelValues(level.String()).Inc()
	p.inner.Log(level, msg)
}

func (p *Prometheus) RecordMetric(name string, value float64, tags ...Tag) {
	p.samples.WithLabelValues(name, flattenTags(tags)).Set(value)
	p.inner.RecordMetric(name, value, tags...)
}

func (p *Prometheus) ShouldCancel() bool { return p.inner.ShouldCancel() }

// flattenTags renders tags as a stable "k1=v1,k2=v2" label value.
func flattenTags(tags []Tag) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.Key + "=" + t.Value
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
