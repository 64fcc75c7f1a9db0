// Package orientation decides whether a cropped text line is upside down.
//
// The classifier model scores each crop against two classes, upright (0)
// and rotated by 180 degrees (1). Crops are scaled to a fixed height, padded
// to a fixed width and normalized to [-1, 1] before inference.
package orientation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/scanline/internal/imgproc"
	"github.com/MeKo-Tech/scanline/internal/mempool"
	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/disintegration/imaging"
)

// Labels reported by the classifier.
const (
	Upright    = 0
	UpsideDown = 180
)

// Config controls classifier preprocessing and the rotation decision.
type Config struct {
	ImageHeight int     // model input height
	ImageWidth  int     // model input width; crops are padded to it
	BatchNum    int     // crops per inference call
	Thresh      float64 // minimum 180 score before a crop is rotated
}

// DefaultConfig matches the 3x48x192 text-direction models.
func DefaultConfig() Config {
	return Config{ImageHeight: 48, ImageWidth: 192, BatchNum: 6, Thresh: 0.9}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.ImageHeight <= 0 || c.ImageWidth <= 0:
		return fmt.Errorf("invalid input size %dx%d", c.ImageWidth, c.ImageHeight)
	case c.BatchNum <= 0:
		return errors.New("batch size must be positive")
	case c.Thresh < 0 || c.Thresh > 1:
		return fmt.Errorf("threshold must be in [0,1], got %g", c.Thresh)
	}
	return nil
}

// Angle is the classifier's verdict for one crop.
type Angle struct {
	Label int     `json:"label"` // Upright or UpsideDown
	Score float64 `json:"score"`
}

// Rotated reports whether the verdict is confident enough to flip the crop.
func (a Angle) Rotated(thresh float64) bool {
	return a.Label == UpsideDown && a.Score > thresh
}

// Classifier runs the 0/180 text-direction model.
type Classifier struct {
	cfg    Config
	engine onnx.Engine
	mu     sync.Mutex
}

// New returns a Classifier. A nil engine makes every call fail with
// onnx.ModelNotReadyError.
func New(engine onnx.Engine, cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}
	return &Classifier{cfg: cfg, engine: engine}, nil
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config { return c.cfg }

// ModelName returns the engine name, or "" without an engine.
func (c *Classifier) ModelName() string {
	if c == nil || c.engine == nil {
		return ""
	}
	return c.engine.Name()
}

// Classify scores every crop and returns the verdicts together with the
// crops to use downstream: crops whose verdict passes Thresh are replaced by
// a 180 degree rotation, the rest are returned unchanged.
func (c *Classifier) Classify(ctx context.Context, crops []image.Image) ([]Angle, []image.Image, error) {
	angles, err := c.Predict(ctx, crops)
	if err != nil {
		return nil, nil, err
	}
	out := make([]image.Image, len(crops))
	for i, crop := range crops {
		out[i] = crop
		if angles[i].Rotated(c.cfg.Thresh) {
			out[i] = imaging.Rotate180(crop)
		}
	}
	return angles, out, nil
}

// Predict scores every crop, BatchNum crops per inference call.
func (c *Classifier) Predict(ctx context.Context, crops []image.Image) ([]Angle, error) {
	if c == nil || c.engine == nil {
		return nil, &onnx.ModelNotReadyError{Model: "classifier"}
	}
	arena := mempool.NewArena()
	defer arena.Release()

	out := make([]Angle, 0, len(crops))
	for start := 0; start < len(crops); start += c.cfg.BatchNum {
		end := min(start+c.cfg.BatchNum, len(crops))
		res, err := c.predictBatch(ctx, crops[start:end], arena)
		if err != nil {
			return nil, fmt.Errorf("classify batch at %d: %w", start, err)
		}
		out = append(out, res...)
	}
	return out, nil
}

func (c *Classifier) predictBatch(ctx context.Context, crops []image.Image, arena *mempool.Arena) ([]Angle, error) {
	start := time.Now()
	h, w := c.cfg.ImageHeight, c.cfg.ImageWidth
	prep := imgproc.Chain{
		imgproc.RecResize(h, w, 0),
		imgproc.NormalizeOp(imgproc.SymmetricStats, imgproc.LayoutPlanar),
	}

	per := 3 * h * w
	data := arena.Float32(len(crops) * per)
	for i, crop := range crops {
		f, err := prep.Run(crop)
		if err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
		if err := imgproc.PadPlanar(data[i*per:(i+1)*per], f.Data, 3, h, f.Width, w); err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
	}
	in, err := onnx.NewBatchTensor(data, len(crops), 3, h, w)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	out, err := c.engine.Infer(ctx, in)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("classification inference: %w", err)
	}
	angles, err := decode(out, len(crops))
	if err != nil {
		return nil, &onnx.InferenceError{Model: c.engine.Name(), Err: err}
	}
	slog.Debug("classification batch finished",
		"model", c.engine.Name(), "crops", len(crops), "duration", time.Since(start))
	return angles, nil
}

// decode reads an [N,2] score tensor.
func decode(t onnx.Tensor, n int) ([]Angle, error) {
	if len(t.Shape) != 2 || t.Shape[0] != int64(n) || t.Shape[1] != 2 {
		return nil, fmt.Errorf("unexpected classifier output shape %v for %d crops", t.Shape, n)
	}
	if len(t.Data) != 2*n {
		return nil, fmt.Errorf("classifier output has %d values, want %d", len(t.Data), 2*n)
	}
	out := make([]Angle, n)
	for i := range n {
		up, down := t.Data[2*i], t.Data[2*i+1]
		if down > up {
			out[i] = Angle{Label: UpsideDown, Score: float64(down)}
		} else {
			out[i] = Angle{Label: Upright, Score: float64(up)}
		}
	}
	return out, nil
}
