// Package pipeline sequences detection, cropping, optional direction
// classification and recognition into one OCR run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/scanline/internal/common"
	"github.com/MeKo-Tech/scanline/internal/detector"
	"github.com/MeKo-Tech/scanline/internal/geometry"
	"github.com/MeKo-Tech/scanline/internal/imgproc"
	"github.com/MeKo-Tech/scanline/internal/mempool"
	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/MeKo-Tech/scanline/internal/orientation"
	"github.com/MeKo-Tech/scanline/internal/recognizer"
)

// Config holds the stage configurations and the result filters.
type Config struct {
	Detector   detector.Config
	Classifier orientation.Config
	Recognizer recognizer.Config
	// DropScore removes recognized regions scoring below it.
	DropScore float64
	// RowThreshold is the vertical distance, in pixels, within which box
	// centers share a row when sorting into reading order.
	RowThreshold float64
	// DictSpace appends a space glyph to the loaded dictionary.
	DictSpace bool
}

// DefaultConfig returns the stage defaults with a 0.5 drop score.
func DefaultConfig() Config {
	return Config{
		Detector:     detector.DefaultConfig(),
		Classifier:   orientation.DefaultConfig(),
		Recognizer:   recognizer.DefaultConfig(),
		DropScore:    0.5,
		RowThreshold: geometry.DefaultRowThreshold,
		DictSpace:    true,
	}
}

// Validate checks every stage configuration.
func (c Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if c.DropScore < 0 || c.DropScore > 1 {
		return fmt.Errorf("drop score must be in [0,1], got %g", c.DropScore)
	}
	if c.RowThreshold < 0 {
		return fmt.Errorf("row threshold must not be negative, got %g", c.RowThreshold)
	}
	return nil
}

// StageObserver receives the duration of every completed stage.
type StageObserver func(stage string, d time.Duration)

// Pipeline runs OCR over single images. It is safe for concurrent use; each
// stage serializes access to its model.
type Pipeline struct {
	cfg      Config
	sessions *Sessions
	observe  StageObserver
	newArena func() *mempool.Arena
}

// New returns a Pipeline over sessions.
func New(sessions *Sessions, cfg Config) (*Pipeline, error) {
	if sessions == nil {
		return nil, errors.New("pipeline sessions are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Pipeline{cfg: cfg, sessions: sessions, newArena: mempool.NewArena}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Sessions returns the stage runners.
func (p *Pipeline) Sessions() *Sessions { return p.sessions }

// Observe installs fn as the stage observer.
func (p *Pipeline) Observe(fn StageObserver) { p.observe = fn }

// Close releases the model sessions.
func (p *Pipeline) Close() error { return p.sessions.Close() }

// Detect runs detection only.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) (*Result, error) {
	return p.Run(ctx, img, Options{Detect: true})
}

// Recognize treats img as a single text line.
func (p *Pipeline) Recognize(ctx context.Context, img image.Image) (*Result, error) {
	return p.Run(ctx, img, Options{Recognize: true})
}

// Run executes the stages selected by opts on img.
//
// With Detect set, regions come from the detector in reading order and an
// empty detection ends the run with an empty result. Without it the whole
// image is a single region. Regions whose recognition score is below
// DropScore are removed from every output slice.
func (p *Pipeline) Run(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	if err := imgproc.ValidateImage("pipeline", img); err != nil {
		return nil, err
	}
	if !opts.Detect && !opts.Classify && !opts.Recognize {
		return nil, errors.New("no pipeline stage selected")
	}
	arena := p.newArena()
	defer arena.Release()
	sw := common.NewStopwatch()
	lap := func(stage string) {
		d := sw.Lap(stage)
		if p.observe != nil {
			p.observe(stage, d)
		}
	}

	var boxes []geometry.Box
	if opts.Detect {
		var err error
		if boxes, err = p.detect(ctx, img); err != nil {
			return nil, err
		}
		lap(StageDetect)
		if len(boxes) == 0 || (!opts.Classify && !opts.Recognize) {
			return &Result{Boxes: boxes, Texts: []TextScore{}}, nil
		}
	} else {
		b := img.Bounds()
		whole := geometry.Rect{MinX: float64(b.Min.X), MinY: float64(b.Min.Y), MaxX: float64(b.Max.X), MaxY: float64(b.Max.Y)}
		boxes = []geometry.Box{whole.Box()}
	}

	crops, err := p.crop(img, boxes, opts.Detect, arena)
	if err != nil {
		return nil, err
	}
	lap(StageCrop)

	res := &Result{Boxes: boxes, Texts: []TextScore{}}
	if opts.Classify {
		if p.sessions.Classifier == nil {
			return nil, &StageError{Stage: StageClassify, Index: -1, Err: &onnx.ModelNotReadyError{Model: "classifier"}}
		}
		angles, rotated, err := p.sessions.Classifier.Classify(ctx, crops)
		if err != nil {
			return nil, &StageError{Stage: StageClassify, Index: -1, Err: err}
		}
		for i, c := range rotated {
			if c != crops[i] {
				arena.Track(c)
			}
		}
		res.Angles, crops = angles, rotated
		lap(StageClassify)
	}

	if opts.Recognize {
		if p.sessions.Recognizer == nil {
			return nil, &StageError{Stage: StageRecognize, Index: -1, Err: &onnx.ModelNotReadyError{Model: "recognizer"}}
		}
		texts, err := p.sessions.Recognizer.Recognize(ctx, crops)
		if err != nil {
			return nil, &StageError{Stage: StageRecognize, Index: -1, Err: err}
		}
		res.Texts = make([]TextScore, len(texts))
		for i, t := range texts {
			res.Texts[i] = TextScore{Text: t.Text, Score: t.Score}
		}
		lap(StageRecognize)
		res = p.dropLowScores(res)
	}

	slog.Debug("pipeline run finished", "stages", opts.String(), "regions", len(res.Boxes), "timing", sw)
	return res, nil
}

func (p *Pipeline) detect(ctx context.Context, img image.Image) ([]geometry.Box, error) {
	if p.sessions.Detector == nil {
		return nil, &StageError{Stage: StageDetect, Index: -1, Err: &onnx.ModelNotReadyError{Model: "detector"}}
	}
	cands, err := p.sessions.Detector.Detect(ctx, img)
	if err != nil {
		return nil, &StageError{Stage: StageDetect, Index: -1, Err: err}
	}
	found := make([]geometry.Box, len(cands))
	for i, c := range cands {
		found[i] = c.Box
	}
	boxes := make([]geometry.Box, 0, len(found))
	for _, idx := range geometry.SortReadingOrder(found, p.cfg.RowThreshold) {
		boxes = append(boxes, found[idx])
	}
	return boxes, nil
}

// crop cuts every box out of img. Without detection the single box covers
// the whole image and img is used as is.
func (p *Pipeline) crop(img image.Image, boxes []geometry.Box, detected bool, arena *mempool.Arena) ([]image.Image, error) {
	if !detected {
		return []image.Image{img}, nil
	}
	crops := make([]image.Image, len(boxes))
	for i, b := range boxes {
		c, err := geometry.CropBox(img, b)
		if err != nil {
			return nil, &StageError{Stage: StageCrop, Index: i, Err: err}
		}
		crops[i] = arena.Track(c)
	}
	return crops, nil
}

func (p *Pipeline) dropLowScores(res *Result) *Result {
	out := &Result{Boxes: []geometry.Box{}, Texts: []TextScore{}}
	if res.Angles != nil {
		out.Angles = []orientation.Angle{}
	}
	for i, t := range res.Texts {
		if t.Score < p.cfg.DropScore {
			continue
		}
		out.Boxes = append(out.Boxes, res.Boxes[i])
		out.Texts = append(out.Texts, t)
		if res.Angles != nil {
			out.Angles = append(out.Angles, res.Angles[i])
		}
	}
	return out
}
