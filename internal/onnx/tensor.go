package onnx

import (
	"errors"
	"fmt"
	"math"
)

// Tensor is a dense float32 tensor in row-major order. Images use NCHW.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// Len returns the element count implied by Shape, or -1 when a dimension
// is negative or the product does not fit in an int.
func (t Tensor) Len() int {
	n, ok := t.elements()
	if !ok {
		return -1
	}
	return n
}

func (t Tensor) elements() (int, bool) {
	if len(t.Shape) == 0 {
		return 0, true
	}
	n := 1
	for _, d := range t.Shape {
		if d < 0 || (d > 0 && int64(n) > math.MaxInt/d) {
			return 0, false
		}
		n *= int(d)
	}
	return n, true
}

// Validate checks that Shape is positive and consistent with len(Data).
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return errors.New("tensor has no shape")
	}
	for i, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
	}
	n, ok := t.elements()
	if !ok {
		return fmt.Errorf("tensor shape %v overflows the element count", t.Shape)
	}
	if n != len(t.Data) {
		return fmt.Errorf("tensor data length %d != %d for shape %v", len(t.Data), n, t.Shape)
	}
	return nil
}

// NewImageTensor wraps planar data of one image as [1, C, H, W].
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if len(data) != c*h*w {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), c*h*w)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// NewBatchTensor wraps n stacked planar images as [N, C, H, W]. data is used
// in place and must hold exactly n*c*h*w values.
func NewBatchTensor(data []float32, n, c, h, w int) (Tensor, error) {
	if n <= 0 {
		return Tensor{}, errors.New("empty batch")
	}
	if len(data) != n*c*h*w {
		return Tensor{}, fmt.Errorf("batch data length %d, want %d", len(data), n*c*h*w)
	}
	return Tensor{Data: data, Shape: []int64{int64(n), int64(c), int64(h), int64(w)}}, nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// Stats returns min, max and mean of the data, for debug logging.
func (t Tensor) Stats() (minVal, maxVal, mean float32) {
	if len(t.Data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal = t.Data[0], t.Data[0]
	var sum float64
	for _, v := range t.Data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(t.Data)))
}
