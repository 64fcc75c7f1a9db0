package recognizer

import (
	"testing"

	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row returns a probability row over n classes with p at class and the rest
// spread evenly.
func row(n, class int, p float32) []float32 {
	r := make([]float32, n)
	rest := (1 - p) / float32(n-1)
	for i := range r {
		r[i] = rest
	}
	r[class] = p
	return r
}

func abc() *Charset { return NewCharset([]string{"a", "b", "c"}, false) }

func TestDecodeGreedy_AllBlank(t *testing.T) {
	d := DecodeGreedy([][]float32{row(4, 0, 0.9), row(4, 0, 0.8)}, abc())
	assert.Empty(t, d.Text)
	assert.Zero(t, d.Score)
	assert.Empty(t, d.Classes)
}

func TestDecodeGreedy_CollapsesRepeat(t *testing.T) {
	probs := [][]float32{
		row(4, 0, 0.9),
		row(4, 0, 0.7),
		row(4, 2, 0.8),
		row(4, 2, 0.6),
		row(4, 3, 0.5),
	}
	d := DecodeGreedy(probs, abc())
	assert.Equal(t, "bc", d.Text)
	assert.Equal(t, []int{2, 3}, d.Classes)
	assert.InDelta(t, (0.8+0.5)/2, d.Score, 1e-6)
}

func TestDecodeGreedy_DistinctSequence(t *testing.T) {
	probs := [][]float32{row(4, 1, 0.9), row(4, 2, 0.7), row(4, 3, 0.8)}
	d := DecodeGreedy(probs, abc())
	assert.Equal(t, "abc", d.Text)
	assert.InDelta(t, 0.8, d.Score, 1e-6)
}

func TestDecodeGreedy_BlankSeparatesRepeats(t *testing.T) {
	probs := [][]float32{row(4, 1, 0.9), row(4, 0, 0.9), row(4, 1, 0.9)}
	assert.Equal(t, "aa", DecodeGreedy(probs, abc()).Text)
}

func TestDecodeGreedy_SkipsUnknownClasses(t *testing.T) {
	probs := [][]float32{row(6, 5, 0.9), row(6, 1, 0.6)}
	d := DecodeGreedy(probs, abc())
	assert.Equal(t, "a", d.Text)
	assert.InDelta(t, 0.6, d.Score, 1e-6, "skipped classes do not count towards the score")
}

func TestDecodeGreedy_Logits(t *testing.T) {
	d := DecodeGreedy([][]float32{{0, 5, 0, 0}}, abc())
	assert.Equal(t, "a", d.Text)
	assert.Greater(t, d.Score, 0.9)
	assert.Less(t, d.Score, 1.0)
}

func TestDecodeGreedy_NFC(t *testing.T) {
	cs := NewCharset([]string{"e", "\u0301"}, false)
	d := DecodeGreedy([][]float32{row(3, 1, 0.9), row(3, 2, 0.9)}, cs)
	assert.Equal(t, "\u00e9", d.Text)
}

func TestDecodeBatch(t *testing.T) {
	data := append(append(row(4, 1, 0.9), row(4, 0, 0.9)...), append(row(4, 3, 0.9), row(4, 3, 0.9)...)...)
	out, err := DecodeBatch(onnx.Tensor{Data: data, Shape: []int64{2, 2, 4}}, abc())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "c", out[1].Text)

	_, err = DecodeBatch(onnx.Tensor{Data: data, Shape: []int64{4, 4}}, abc())
	assert.Error(t, err)
	_, err = DecodeBatch(onnx.Tensor{Data: data[:3], Shape: []int64{2, 2, 4}}, abc())
	assert.Error(t, err)
}

func TestDecodeBatch_RejectsOverflowingShape(t *testing.T) {
	_, err := DecodeBatch(onnx.Tensor{Shape: []int64{1 << 32, 1 << 32, 2}}, DefaultCharset())
	assert.ErrorContains(t, err, "overflows")
}

func TestCharset_EncodeRoundTrip(t *testing.T) {
	cs := DefaultCharset()
	seq, err := cs.Encode("Hello, world")
	require.NoError(t, err)
	assert.Contains(t, seq, 0, "repeated l is split by a blank")

	rows := make([][]float32, len(seq))
	for i, cls := range seq {
		rows[i] = make([]float32, cs.Classes())
		rows[i][cls] = 1
	}
	assert.Equal(t, "Hello, world", DecodeGreedy(rows, cs).Text)

	_, err = cs.Encode("\u00e9")
	assert.Error(t, err)
}
