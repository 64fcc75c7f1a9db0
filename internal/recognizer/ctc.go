package recognizer

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/scanline/internal/onnx"
)

// Decoded is the greedy CTC reading of one sequence.
type Decoded struct {
	Text  string
	Score float64 // mean probability of the emitted classes, 0 when none
	// Classes and Probs list the emitted classes and their probabilities.
	Classes []int
	Probs   []float64
}

// DecodeGreedy takes the argmax class at every timestep and emits it when it
// is not the blank and differs from the previous timestep's argmax. Classes
// outside the charset are skipped.
func DecodeGreedy(probs [][]float32, cs *Charset) Decoded {
	var (
		d    Decoded
		sb   strings.Builder
		prev = -1
		sum  float64
	)
	for _, row := range probs {
		cls, p := argmax(row)
		if cls < 0 {
			continue
		}
		if cls != 0 && cls != prev {
			if g, ok := cs.Glyph(cls); ok {
				sb.WriteString(g)
				d.Classes = append(d.Classes, cls)
				d.Probs = append(d.Probs, p)
				sum += p
			}
		}
		prev = cls
	}
	d.Text = norm.NFC.String(sb.String())
	if n := len(d.Probs); n > 0 {
		d.Score = sum / float64(n)
	}
	return d
}

// DecodeBatch decodes an [N, T, C] output into N readings.
func DecodeBatch(t onnx.Tensor, cs *Charset) ([]Decoded, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("recognition output rank %d, want 3 ([N,T,C])", len(t.Shape))
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("recognition output: %w", err)
	}
	n, steps, classes := int(t.Shape[0]), int(t.Shape[1]), int(t.Shape[2])
	if classes < 2 {
		return nil, fmt.Errorf("recognition output has %d classes", classes)
	}
	out := make([]Decoded, n)
	rows := make([][]float32, steps)
	for i := range n {
		base := i * steps * classes
		for s := range steps {
			rows[s] = t.Data[base+s*classes : base+(s+1)*classes]
		}
		out[i] = DecodeGreedy(rows, cs)
	}
	return out, nil
}

func argmax(v []float32) (int, float64) {
	if len(v) == 0 {
		return -1, 0
	}
	idx := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[idx] {
			idx = i
		}
	}
	return idx, probability(v, idx)
}

// probability returns v[idx] when the row already looks like a distribution
// and its softmax probability otherwise.
func probability(v []float32, idx int) float64 {
	var sum float64
	lo, hi := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		lo, hi = min(lo, x), max(hi, x)
	}
	if lo >= 0 && hi <= 1 && sum > 0.99 && sum < 1.01 {
		return float64(v[idx])
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - hi))
	}
	return math.Exp(float64(v[idx]-hi)) / denom
}
