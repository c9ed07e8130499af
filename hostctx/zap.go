package hostctx

import "go.uber.org/zap"

// Zap is a Context that forwards script logs to a zap logger and records
// metrics as structured debug lines. Cancellation is never requested.
type Zap struct {
	log *zap.Logger
}

// NewZap returns a zap-backed context. A nil logger uses zap.NewNop.
func NewZap(log *zap.Logger) *Zap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Zap{log: log.Named("script")}
}

func (z *Zap) Log(level Level, msg string) {
	switch level {
	case LevelDebug:
		z.log.Debug(msg)
	case LevelInfo:
		z.log.Info(msg)
	case LevelWarn:
		z.log.Warn(msg)
	case LevelError:
		z.log.Error(msg)
	default:
		z.log.Info(msg)
	}
}

func (z *Zap) RecordMetric(name string, value float64, tags ...Tag) {
	fields := make([]zap.Field, 0, len(tags)+2)
	fields = append(fields, zap.String("metric", name), zap.Float64("value", value))
	for _, t := range tags {
		fields = append(fields, zap.String(t.Key, t.Value))
	}
	z.log.Debug("metric recorded", fields...)
}

func (z *Zap) ShouldCancel() bool { return false }
