// Package common provides small helpers shared by the pipeline and its
// front ends.
package common

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Lap is the time spent in one named stage.
type Lap struct {
	Stage    string
	Duration time.Duration
}

// Stopwatch records consecutive stage durations. It is not safe for
// concurrent use.
type Stopwatch struct {
	now   func() time.Time
	start time.Time
	last  time.Time
	laps  []Lap
}

// NewStopwatch starts a stopwatch.
func NewStopwatch() *Stopwatch { return newStopwatch(time.Now) }

func newStopwatch(now func() time.Time) *Stopwatch {
	t := now()
	return &Stopwatch{now: now, start: t, last: t}
}

// Lap closes the current stage under name and returns its duration.
func (s *Stopwatch) Lap(stage string) time.Duration {
	t := s.now()
	d := t.Sub(s.last)
	s.last = t
	s.laps = append(s.laps, Lap{Stage: stage, Duration: d})
	return d
}

// Laps returns the recorded stages in order.
func (s *Stopwatch) Laps() []Lap { return append([]Lap(nil), s.laps...) }

// Total is the time since the stopwatch started.
func (s *Stopwatch) Total() time.Duration { return s.now().Sub(s.start) }

// String renders "stage=duration" pairs.
func (s *Stopwatch) String() string {
	parts := make([]string, len(s.laps))
	for i, l := range s.laps {
		parts[i] = fmt.Sprintf("%s=%v", l.Stage, l.Duration)
	}
	return strings.Join(parts, " ")
}

// LogValue groups the laps for slog.
func (s *Stopwatch) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.laps)+1)
	for _, l := range s.laps {
		attrs = append(attrs, slog.Duration(l.Stage, l.Duration))
	}
	attrs = append(attrs, slog.Duration("total", s.Total()))
	return slog.GroupValue(attrs...)
}
