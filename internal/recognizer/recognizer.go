// Package recognizer reads the text in cropped line images: crops are
// resized to a fixed height, batched, run through the recognition model and
// decoded with greedy CTC.
package recognizer

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
)

// Config holds recognition preprocessing and batching parameters.
type Config struct {
	ImageHeight int // model input height
	MaxWidth    int // widest accepted line after resizing
	BatchNum    int // crops per inference call
}

// DefaultConfig matches the common 3x48xW recognition models.
func DefaultConfig() Config {
	return Config{ImageHeight: 48, MaxWidth: 960, BatchNum: 6}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.ImageHeight <= 0:
		return fmt.Errorf("image height must be positive, got %d", c.ImageHeight)
	case c.MaxWidth < c.ImageHeight:
		return fmt.Errorf("max width %d is below image height %d", c.MaxWidth, c.ImageHeight)
	case c.BatchNum <= 0:
		return errors.New("batch size must be positive")
	}
	return nil
}

// Result is the reading of one crop.
type Result struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Recognizer runs text recognition with one engine. Access to the engine is
// serialized.
type Recognizer struct {
	cfg     Config
	engine  onnx.Engine
	charset *Charset
	mu      sync.Mutex
}

// New returns a Recognizer. A nil charset selects DefaultCharset; a nil
// engine makes every call fail with onnx.ModelNotReadyError.
func New(engine onnx.Engine, cs *Charset, cfg Config) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recognizer config: %w", err)
	}
	if cs == nil {
		cs = DefaultCharset()
	}
	return &Recognizer{cfg: cfg, engine: engine, charset: cs}, nil
}

// Config returns the recognizer's configuration.
func (r *Recognizer) Config() Config { return r.cfg }

// Charset returns the charset used for decoding.
func (r *Recognizer) Charset() *Charset { return r.charset }

// ModelName returns the engine name, or "" without an engine.
func (r *Recognizer) ModelName() string {
	if r == nil || r.engine == nil {
		return ""
	}
	return r.engine.Name()
}

// Recognize reads every crop, BatchNum crops per inference call.
func (r *Recognizer) Recognize(ctx context.Context, crops []image.Image) ([]Result, error) {
	arena := mempool.NewArena()
	defer arena.Release()

	out := make([]Result, 0, len(crops))
	for start := 0; start < len(crops); start += r.cfg.BatchNum {
		end := min(start+r.cfg.BatchNum, len(crops))
		res, err := r.RecognizeBatch(ctx, crops[start:end], arena)
		if err != nil {
			return nil, fmt.Errorf("recognize batch at %d: %w", start, err)
		}
		out = append(out, res...)
	}
	return out, nil
}

// RecognizeBatch reads crops with a single inference call. Every crop is
// scaled to ImageHeight and the batch is padded to its widest member.
// Buffers are taken from arena, or from a private arena when nil.
func (r *Recognizer) RecognizeBatch(ctx context.Context, crops []image.Image, arena *mempool.Arena) ([]Result, error) {
	if r == nil || r.engine == nil {
		return nil, &onnx.ModelNotReadyError{Model: "recognizer"}
	}
	if len(crops) == 0 {
		return nil, nil
	}
	if arena == nil {
		arena = mempool.NewArena()
		defer arena.Release()
	}
	start := time.Now()
	h := r.cfg.ImageHeight

	resized := make([]*image.NRGBA, len(crops))
	batchW := 0
	for i, c := range crops {
		img, err := imgproc.ResizeForRecognition(c, h, r.cfg.MaxWidth, 0)
		if err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
		resized[i] = img
		batchW = max(batchW, img.Bounds().Dx())
	}

	per := 3 * h * batchW
	data := arena.Float32(len(crops) * per)
	for i, img := range resized {
		w := img.Bounds().Dx()
		planar := arena.Float32(3 * h * w)
		if err := imgproc.NormalizeInto(planar, img, imgproc.SymmetricStats, imgproc.LayoutPlanar); err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
		if err := imgproc.PadPlanar(data[i*per:(i+1)*per], planar, 3, h, w, batchW); err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
	}
	in, err := onnx.NewBatchTensor(data, len(crops), 3, h, batchW)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	out, err := r.engine.Infer(ctx, in)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognition inference: %w", err)
	}
	decoded, err := DecodeBatch(out, r.charset)
	if err != nil {
		return nil, &onnx.InferenceError{Model: r.engine.Name(), Err: err}
	}
	if len(decoded) != len(crops) {
		return nil, &onnx.InferenceError{
			Model: r.engine.Name(),
			Err:   fmt.Errorf("got %d sequences for %d crops", len(decoded), len(crops)),
		}
	}

	results := make([]Result, len(decoded))
	for i, d := range decoded {
		results[i] = Result{Text: d.Text, Score: d.Score}
	}
	slog.Debug("recognition batch finished",
		"model", r.engine.Name(), "crops", len(crops), "width", batchW, "duration", time.Since(start))
	return results, nil
}
