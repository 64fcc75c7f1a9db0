package recognizer

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/MeKo-Tech/scanline/internal/mempool"
	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/MeKo-Tech/scanline/internal/onnx/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crop(w, h int) image.Image { return image.NewNRGBA(image.Rect(0, 0, w, h)) }

func TestRecognizer_BatchesAndPads(t *testing.T) {
	cs := abc()
	engine := mock.RecognitionEngine("rec.onnx", cs.Classes(), func(i int) []int {
		return [][]int{{1}, {2, 2, 0, 2}, {3, 1}}[i%3]
	})
	cfg := DefaultConfig()
	cfg.BatchNum = 2
	r, err := New(engine, cs, cfg)
	require.NoError(t, err)

	res, err := r.Recognize(context.Background(), []image.Image{crop(100, 48), crop(50, 24), crop(300, 48)})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "a", res[0].Text)
	assert.Equal(t, "bb", res[1].Text)
	assert.Equal(t, "ca", res[2].Text)
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)

	// First batch padded to the 100px crop, second holds the single 300px crop.
	assert.Equal(t, [][]int64{{2, 3, 48, 100}, {1, 3, 48, 300}}, engine.Inputs())
}

func TestRecognizer_ClampsWidth(t *testing.T) {
	engine := mock.RecognitionEngine("rec", 4, func(int) []int { return []int{1} })
	r, err := New(engine, abc(), Config{ImageHeight: 32, MaxWidth: 64, BatchNum: 4})
	require.NoError(t, err)
	_, err = r.RecognizeBatch(context.Background(), []image.Image{crop(1000, 10)}, mempool.NewArena())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 32, 64}, engine.Inputs()[0])
}

func TestRecognizer_EmptyBatch(t *testing.T) {
	engine := mock.RecognitionEngine("rec", 4, func(int) []int { return nil })
	r, _ := New(engine, abc(), DefaultConfig())
	res, err := r.RecognizeBatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, engine.Calls())
}

func TestRecognizer_Errors(t *testing.T) {
	r, err := New(nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 95, r.Charset().Len())
	_, err = r.Recognize(context.Background(), []image.Image{crop(10, 10)})
	var nr *onnx.ModelNotReadyError
	require.ErrorAs(t, err, &nr)

	boom := errors.New("boom")
	r, _ = New(mock.Failing("rec", boom), abc(), DefaultConfig())
	_, err = r.Recognize(context.Background(), []image.Image{crop(10, 10)})
	assert.ErrorIs(t, err, boom)

	// Engine answers with the wrong batch size.
	r, _ = New(mock.Static("rec", mock.GreedyLogits([]int{1}, 4, 0.9, 0.1)), abc(), DefaultConfig())
	_, err = r.RecognizeBatch(context.Background(), []image.Image{crop(10, 10), crop(10, 10)}, nil)
	var ie *onnx.InferenceError
	assert.ErrorAs(t, err, &ie)

	_, err = New(nil, nil, Config{ImageHeight: 48, MaxWidth: 10, BatchNum: 1})
	assert.Error(t, err)
}
