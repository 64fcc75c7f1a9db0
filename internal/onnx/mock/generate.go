package mock

import (
	"context"
	"image"
	"math"

	"github.com/MeKo-Tech/scanline/internal/onnx"
)

// UniformMap returns a [1,1,H,W] probability map filled with value.
func UniformMap(w, h int, value float32) onnx.Tensor {
	data := make([]float32, w*h)
	for i := range data {
		data[i] = clamp01(value)
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, 1, int64(h), int64(w)}}
}

// RectMap returns a [1,1,H,W] probability map that is hi inside each of rects
// and lo elsewhere.
func RectMap(w, h int, rects []image.Rectangle, hi, lo float32) onnx.Tensor {
	t := UniformMap(w, h, lo)
	bounds := image.Rect(0, 0, w, h)
	for _, r := range rects {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				t.Data[y*w+x] = clamp01(hi)
			}
		}
	}
	return t
}

// BlobMap returns a [1,1,H,W] map holding a Gaussian blob centred in the map.
func BlobMap(w, h int, peak float32, sigma float64) onnx.Tensor {
	t := UniformMap(w, h, 0)
	cx, cy := float64(w-1)/2, float64(h-1)/2
	inv := 1 / (2 * sigma * sigma)
	for y := range h {
		for x := range w {
			dx, dy := float64(x)-cx, float64(y)-cy
			t.Data[y*w+x] = clamp01(float32(math.Exp(-(dx*dx+dy*dy)*inv)) * peak)
		}
	}
	return t
}

// DetectionEngine answers each input of size W x H with the map built by fn,
// so tests can place text in model-input coordinates regardless of resizing.
func DetectionEngine(name string, fn func(w, h int) onnx.Tensor) *Engine {
	return Func(name, func(_ context.Context, in onnx.Tensor) (onnx.Tensor, error) {
		_, h, w, err := nchw(in)
		if err != nil {
			return onnx.Tensor{}, err
		}
		return fn(w, h), nil
	})
}

// GreedyLogits returns [1,T,C] probabilities whose per-step argmax follows
// indices.
func GreedyLogits(indices []int, classes int, high, low float32) onnx.Tensor {
	return BatchLogits([][]int{indices}, classes, high, low)
}

// BatchLogits returns [N,T,C] probabilities, one row per sequence. Shorter
// sequences are padded with blank (index 0).
func BatchLogits(seqs [][]int, classes int, high, low float32) onnx.Tensor {
	steps := 1
	for _, s := range seqs {
		steps = max(steps, len(s))
	}
	data := make([]float32, len(seqs)*steps*classes)
	for n, s := range seqs {
		for ti := range steps {
			want := 0
			if ti < len(s) {
				want = s[ti]
			}
			row := data[(n*steps+ti)*classes : (n*steps+ti+1)*classes]
			for c := range row {
				row[c] = low
			}
			if want >= 0 && want < classes {
				row[want] = high
			}
		}
	}
	return onnx.Tensor{Data: data, Shape: []int64{int64(len(seqs)), int64(steps), int64(classes)}}
}

// RecognitionEngine answers each batch with per-step distributions whose
// argmax follows next and carries probability 0.9. next is called once per
// batch item, in order across all calls, with a running item index.
func RecognitionEngine(name string, classes int, next func(i int) []int) *Engine {
	return ScoredRecognitionEngine(name, classes, func(i int) ([]int, float32) { return next(i), 0.9 })
}

// ScoredRecognitionEngine is RecognitionEngine with a per-item argmax
// probability. The remaining mass is spread evenly so every row sums to one.
func ScoredRecognitionEngine(name string, classes int, next func(i int) ([]int, float32)) *Engine {
	var seen int
	return Func(name, func(_ context.Context, in onnx.Tensor) (onnx.Tensor, error) {
		n, _, _, err := nchw(in)
		if err != nil {
			return onnx.Tensor{}, err
		}
		seqs := make([][]int, n)
		highs := make([]float32, n)
		steps := 1
		for i := range seqs {
			seqs[i], highs[i] = next(seen)
			seen++
			steps = max(steps, len(seqs[i]))
		}
		out := onnx.Tensor{
			Data:  make([]float32, n*steps*classes),
			Shape: []int64{int64(n), int64(steps), int64(classes)},
		}
		for i, s := range seqs {
			one := BatchLogits([][]int{padBlank(s, steps)}, classes, highs[i], (1-highs[i])/float32(classes-1))
			copy(out.Data[i*steps*classes:], one.Data)
		}
		return out, nil
	})
}

func padBlank(s []int, steps int) []int {
	out := make([]int, steps)
	copy(out, s)
	return out
}

// ClassifierEngine answers each batch with [N,2] scores; label returns the
// winning class (0 or 1) and its probability for a running item index.
func ClassifierEngine(name string, label func(i int) (int, float32)) *Engine {
	var seen int
	return Func(name, func(_ context.Context, in onnx.Tensor) (onnx.Tensor, error) {
		n, _, _, err := nchw(in)
		if err != nil {
			return onnx.Tensor{}, err
		}
		data := make([]float32, 2*n)
		for i := range n {
			cls, p := label(seen)
			seen++
			data[2*i+cls] = p
			data[2*i+1-cls] = 1 - p
		}
		return onnx.Tensor{Data: data, Shape: []int64{int64(n), 2}}, nil
	})
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
