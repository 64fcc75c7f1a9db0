// Package mock provides scripted onnx.Engine implementations and synthetic
// model outputs for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/scanline/internal/onnx"
)

// Engine is an onnx.Engine whose output is produced by Fn. It records the
// shape of every input it receives.
type Engine struct {
	ModelName string
	Fn        func(ctx context.Context, in onnx.Tensor) (onnx.Tensor, error)

	mu     sync.Mutex
	inputs [][]int64
}

// Func returns an Engine calling fn.
func Func(name string, fn func(ctx context.Context, in onnx.Tensor) (onnx.Tensor, error)) *Engine {
	return &Engine{ModelName: name, Fn: fn}
}

// Static returns an Engine that always answers with out.
func Static(name string, out onnx.Tensor) *Engine {
	return Func(name, func(context.Context, onnx.Tensor) (onnx.Tensor, error) { return out, nil })
}

// Failing returns an Engine that always fails with err wrapped in an
// onnx.InferenceError.
func Failing(name string, err error) *Engine {
	return Func(name, func(context.Context, onnx.Tensor) (onnx.Tensor, error) {
		return onnx.Tensor{}, &onnx.InferenceError{Model: name, Err: err}
	})
}

// Name implements onnx.Engine.
func (e *Engine) Name() string { return e.ModelName }

// Infer implements onnx.Engine.
func (e *Engine) Infer(ctx context.Context, in onnx.Tensor) (onnx.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return onnx.Tensor{}, err
	}
	e.mu.Lock()
	e.inputs = append(e.inputs, append([]int64(nil), in.Shape...))
	e.mu.Unlock()
	if e.Fn == nil {
		return onnx.Tensor{}, &onnx.ModelNotReadyError{Model: e.ModelName}
	}
	return e.Fn(ctx, in)
}

// Calls returns the number of Infer calls so far.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inputs)
}

// Inputs returns the input shapes seen so far, in call order.
func (e *Engine) Inputs() [][]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]int64(nil), e.inputs...)
}

// nchw extracts N, H and W from an image input.
func nchw(in onnx.Tensor) (n, h, w int, err error) {
	if err := onnx.ValidateNCHW(in.Shape); err != nil {
		return 0, 0, 0, fmt.Errorf("mock engine input: %w", err)
	}
	return int(in.Shape[0]), int(in.Shape[2]), int(in.Shape[3]), nil
}
