package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MeKo-Tech/scanline/internal/detector"
	"github.com/MeKo-Tech/scanline/internal/models"
	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/MeKo-Tech/scanline/internal/orientation"
	"github.com/MeKo-Tech/scanline/internal/recognizer"
)

// Sessions holds the stage runners of one pipeline. A Pipeline owns its
// Sessions; two pipelines built from different Sessions share nothing.
type Sessions struct {
	Detector   *detector.Detector
	Classifier *orientation.Classifier
	Recognizer *recognizer.Recognizer

	closers []io.Closer
}

// RuntimeConfig describes how model files are loaded into ONNX Runtime.
type RuntimeConfig struct {
	LibPath    string         `mapstructure:"lib_path" yaml:"lib_path" json:"lib_path"`
	NumThreads int            `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU        onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// OpenSessions loads the models named in files. The classifier is only
// loaded when withClassifier is set. The dictionary is loaded fail-open.
func OpenSessions(ctx context.Context, files models.Set, rt RuntimeConfig, cfg Config, withClassifier bool) (*Sessions, error) {
	s := &Sessions{}
	open := func(path string) (*onnx.Session, error) {
		sess, err := onnx.NewSession(onnx.SessionConfig{
			ModelPath:  path,
			LibPath:    rt.LibPath,
			NumThreads: rt.NumThreads,
			GPU:        rt.GPU,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sess)
		return sess, nil
	}
	fail := func(err error) (*Sessions, error) {
		_ = s.Close()
		return nil, err
	}

	det, err := open(files.Detector)
	if err != nil {
		return fail(fmt.Errorf("init detector: %w", err))
	}
	if s.Detector, err = detector.New(det, cfg.Detector); err != nil {
		return fail(err)
	}

	if withClassifier {
		cls, err := open(files.Classifier)
		if err != nil {
			return fail(fmt.Errorf("init classifier: %w", err))
		}
		if s.Classifier, err = orientation.New(cls, cfg.Classifier); err != nil {
			return fail(err)
		}
	}

	rec, err := open(files.Recognizer)
	if err != nil {
		return fail(fmt.Errorf("init recognizer: %w", err))
	}
	charset := recognizer.LoadCharset(ctx, files.Dictionary, cfg.DictSpace)
	if s.Recognizer, err = recognizer.New(rec, charset, cfg.Recognizer); err != nil {
		return fail(err)
	}
	return s, nil
}

// EngineNames identifies the loaded models, e.g. "det.onnx+rec.onnx".
func (s *Sessions) EngineNames() string {
	if s == nil {
		return ""
	}
	var names []string
	for _, n := range []string{s.Detector.ModelName(), s.Classifier.ModelName(), s.Recognizer.ModelName()} {
		if n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, "+")
}

// Close releases every model session opened by OpenSessions.
func (s *Sessions) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
