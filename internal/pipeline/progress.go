package pipeline

import (
	"log/slog"
	"time"
)

// ProgressCallback receives progress of a multi-image run. Calls are
// serialized by the caller.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
	OnError(index int, err error)
}

// NoOpProgressCallback ignores all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// LogProgressCallback logs progress every Interval items.
type LogProgressCallback struct {
	Logger   *slog.Logger
	Interval int

	start   time.Time
	lastLog int
}

// NewLogProgressCallback logs through logger, or slog.Default when nil.
func NewLogProgressCallback(logger *slog.Logger) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{Logger: logger, Interval: 10}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.start = time.Now()
	l.lastLog = 0
	l.Logger.Info("processing started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	if current-l.lastLog < l.Interval && current != total {
		return
	}
	l.lastLog = current
	elapsed := time.Since(l.start)
	l.Logger.Info("processing progress",
		"current", current, "total", total,
		"rate", float64(current)/max(elapsed.Seconds(), 1e-9))
}

func (l *LogProgressCallback) OnComplete() {
	l.Logger.Info("processing completed", "duration", time.Since(l.start).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(index int, err error) {
	l.Logger.Error("processing failed", "index", index, "error", err)
}
