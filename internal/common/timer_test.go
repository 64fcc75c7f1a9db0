package common

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatch(t *testing.T) {
	clock := time.Unix(0, 0)
	sw := newStopwatch(func() time.Time { return clock })

	clock = clock.Add(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, sw.Lap("detect"))
	clock = clock.Add(5 * time.Millisecond)
	sw.Lap("recognize")

	assert.Equal(t, []Lap{{"detect", 20 * time.Millisecond}, {"recognize", 5 * time.Millisecond}}, sw.Laps())
	assert.Equal(t, 25*time.Millisecond, sw.Total())
	assert.Equal(t, "detect=20ms recognize=5ms", sw.String())

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("run", "timing", sw)
	assert.Contains(t, buf.String(), "timing.detect=20ms")
	assert.Contains(t, buf.String(), "timing.total=25ms")
}
