package hostctx

import "sync"

// LogEntry is one captured log line.
type LogEntry struct {
	Level Level
	Msg   string
}

// MetricEntry is one captured metric sample.
type MetricEntry struct {
	Name  string
	Value float64
	Tags  []Tag
}

// Recorder captures everything a script emits. Intended for tests and
// for applications that want to inspect a run's output after the fact.
type Recorder struct {
	mu        sync.Mutex
	logs      []LogEntry
	metrics   []MetricEntry
	cancelled bool
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Log(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, LogEntry{Level: level, Msg: msg})
}

func (r *Recorder) RecordMetric(name string, value float64, tags ...Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, MetricEntry{Name: name, Value: value, Tags: tags})
}

func (r *Recorder) ShouldCancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Cancel makes subsequent ShouldCancel calls return true.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

// Logs returns a copy of the captured log lines.
func (r *Recorder) Logs() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.logs...)
}

// Metrics returns a copy of the captured samples.
func (r *Recorder) Metrics() []MetricEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MetricEntry(nil), r.metrics...)
}
