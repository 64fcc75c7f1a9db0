package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// SessionConfig describes one model file and how to run it.
type SessionConfig struct {
	ModelPath  string
	LibPath    string
	NumThreads int
	GPU        GPUConfig
}

// Session is an Engine backed by an ONNX Runtime session with a single input
// and output. Run calls are serialized; ONNX Runtime cannot be interrupted
// once a run has started, so ctx is only checked before it begins.
type Session struct {
	mu     sync.Mutex
	sess   *ort.DynamicAdvancedSession
	name   string
	input  ort.InputOutputInfo
	output ort.InputOutputInfo
}

// NewSession loads the model described by cfg.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if err := cfg.GPU.Validate(); err != nil {
		return nil, err
	}
	if err := InitRuntime(cfg.LibPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model io info %s: %w", cfg.ModelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s: expected 1 input and 1 output, got %d and %d",
			cfg.ModelPath, len(inputs), len(outputs))
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()
	if err := cfg.GPU.configure(opts); err != nil {
		return nil, err
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("set thread count: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("create ONNX session for %s: %w", cfg.ModelPath, err)
	}
	slog.Debug("model loaded", "model", cfg.ModelPath,
		"input", inputs[0].Name, "input_dims", inputs[0].Dimensions,
		"output", outputs[0].Name, "gpu", cfg.GPU.UseGPU)

	return &Session{
		sess:   sess,
		name:   filepath.Base(cfg.ModelPath),
		input:  inputs[0],
		output: outputs[0],
	}, nil
}

// Name returns the model file name.
func (s *Session) Name() string { return s.name }

// InputDims returns the model's declared input dimensions; dynamic axes are
// reported as -1.
func (s *Session) InputDims() []int64 { return s.input.Dimensions }

// Infer runs the model on in.
func (s *Session) Infer(ctx context.Context, in Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	if err := in.Validate(); err != nil {
		return Tensor{}, fmt.Errorf("invalid input tensor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return Tensor{}, &ModelNotReadyError{Model: s.name}
	}

	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return Tensor{}, &InferenceError{Model: s.name, Err: fmt.Errorf("create input tensor: %w", err)}
	}
	defer destroy(input)

	outputs := []ort.Value{nil}
	if err := s.sess.Run([]ort.Value{input}, outputs); err != nil {
		return Tensor{}, &InferenceError{Model: s.name, Err: err}
	}
	defer destroy(outputs[0])

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, &InferenceError{Model: s.name, Err: fmt.Errorf("expected float32 output, got %T", outputs[0])}
	}
	// The runtime owns out's memory; copy before destroying it.
	data := append([]float32(nil), out.GetData()...)
	shape := append([]int64(nil), out.GetShape()...)
	return Tensor{Data: data, Shape: shape}, nil
}

// Close destroys the session. Later Infer calls return ModelNotReadyError.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	if err != nil {
		return fmt.Errorf("destroy session %s: %w", s.name, err)
	}
	return nil
}

func destroy(v ort.Value) {
	if v == nil {
		return
	}
	if err := v.Destroy(); err != nil {
		slog.Warn("failed to destroy tensor", "error", err)
	}
}
