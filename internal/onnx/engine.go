// Package onnx defines the inference collaborator used by every pipeline
// stage and its ONNX Runtime implementation.
package onnx

import (
	"context"
	"fmt"
)

// Engine runs a model: tensor in, tensor out. Implementations may be slow
// and may fail; output shapes are validated by the calling stage.
type Engine interface {
	Infer(ctx context.Context, in Tensor) (Tensor, error)
	// Name identifies the model, e.g. for cache keys and logs.
	Name() string
}

// ModelNotReadyError is returned when an engine is used before its model is
// loaded or after it has been closed.
type ModelNotReadyError struct {
	Model string
}

func (e *ModelNotReadyError) Error() string {
	return fmt.Sprintf("model %q is not ready", e.Model)
}

// InferenceError wraps a failure inside the inference engine.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on %q failed: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
