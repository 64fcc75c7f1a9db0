// Package detector locates text regions: it runs the detection model on a
// resized, normalized image and converts the resulting probability map into
// scored quadrilaterals.
package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/scanline/internal/imgproc"
	"github.com/MeKo-Tech/scanline/internal/mempool"
	"github.com/MeKo-Tech/scanline/internal/onnx"
)

// Detector runs text detection with one engine. Access to the engine is
// serialized.
type Detector struct {
	cfg    Config
	engine onnx.Engine
	mu     sync.Mutex
}

// New returns a Detector using engine. A nil engine is accepted; Detect then
// fails with onnx.ModelNotReadyError.
func New(engine onnx.Engine, cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	return &Detector{cfg: cfg, engine: engine}, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// ModelName returns the engine name, or "" without an engine.
func (d *Detector) ModelName() string {
	if d == nil || d.engine == nil {
		return ""
	}
	return d.engine.Name()
}

// Detect returns the text candidates found in img, sorted by descending score.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Candidate, error) {
	if d == nil || d.engine == nil {
		return nil, &onnx.ModelNotReadyError{Model: "detector"}
	}
	start := time.Now()
	arena := mempool.NewArena()
	defer arena.Release()

	resized, ratio, err := imgproc.ResizeForDetection(img, d.cfg.LimitSideLen, d.cfg.LimitType)
	if err != nil {
		return nil, err
	}
	w, h := resized.Bounds().Dx(), resized.Bounds().Dy()
	buf := arena.Float32(3 * w * h)
	if err := imgproc.NormalizeInto(buf, resized, imgproc.ImageNetStats, imgproc.LayoutPlanar); err != nil {
		return nil, err
	}
	in, err := onnx.NewImageTensor(buf, 3, h, w)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	out, err := d.engine.Infer(ctx, in)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detection inference: %w", err)
	}
	m, err := probabilityMap(out, w, h)
	if err != nil {
		return nil, &onnx.InferenceError{Model: d.engine.Name(), Err: err}
	}

	b := img.Bounds()
	cands := postProcess(m, ratio, b.Dx(), b.Dy(), d.cfg, arena)
	slog.Debug("detection finished",
		"model", d.engine.Name(),
		"input", fmt.Sprintf("%dx%d", w, h),
		"candidates", len(cands),
		"duration", time.Since(start))
	return cands, nil
}

// probabilityMap validates a [1,1,H,W] or [1,H,W] output against the input
// size.
func probabilityMap(t onnx.Tensor, w, h int) (Map, error) {
	s := t.Shape
	var oh, ow int64
	switch {
	case len(s) == 4 && s[0] == 1 && s[1] == 1:
		oh, ow = s[2], s[3]
	case len(s) == 3 && s[0] == 1:
		oh, ow = s[1], s[2]
	default:
		return Map{}, fmt.Errorf("unexpected detection output shape %v", s)
	}
	if int(oh) != h || int(ow) != w {
		return Map{}, fmt.Errorf("detection output %dx%d does not match input %dx%d", ow, oh, w, h)
	}
	if len(t.Data) != w*h {
		return Map{}, fmt.Errorf("detection output has %d values, want %d", len(t.Data), w*h)
	}
	return Map{Data: t.Data, Width: w, Height: h}, nil
}
