package testutil

import (
	"context"
	"image"
	"testing"

	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/MeKo-Tech/scanline/internal/recognizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePage() Page {
	return Page{Width: 200, Height: 100, Regions: []Region{
		{Rect: image.Rect(110, 20, 190, 36), Text: "right"},
		{Rect: image.Rect(10, 60, 90, 76), Text: "below"},
		{Rect: image.Rect(10, 22, 90, 38), Text: "left"},
	}}
}

func TestPage_Image(t *testing.T) {
	img := samplePage().Image()
	assert.Equal(t, uint8(255), img.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(20), img.NRGBAAt(120, 25).R)
	assert.NotEmpty(t, samplePage().PNG(t))
}

func TestPage_ReadingOrder(t *testing.T) {
	var texts []string
	for _, r := range samplePage().ReadingOrder(10) {
		texts = append(texts, r.Text)
	}
	assert.Equal(t, []string{"left", "right", "below"}, texts)
}

func TestNewEngines(t *testing.T) {
	cs := recognizer.DefaultCharset()
	e := NewEngines(samplePage(), cs)
	ctx := context.Background()

	det, err := e.Detector.Infer(ctx, onnx.Tensor{Data: make([]float32, 3*100*200), Shape: []int64{1, 3, 100, 200}})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, det.Data[25*200+120], 1e-6)

	out, err := e.Recognizer.Infer(ctx, onnx.Tensor{Data: make([]float32, 2*3*48*10), Shape: []int64{2, 3, 48, 10}})
	require.NoError(t, err)
	decoded, err := recognizer.DecodeBatch(out, cs)
	require.NoError(t, err)
	assert.Equal(t, "left", decoded[0].Text)
	assert.Equal(t, "right", decoded[1].Text)
	assert.InDelta(t, 0.9, decoded[0].Score, 1e-6)
}
