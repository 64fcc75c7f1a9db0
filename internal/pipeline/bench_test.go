package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkRun(b *testing.B) {
	page := letterPage()
	p, _ := newPipeline(b, page)
	img := page.Image()
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		_, err := p.Run(ctx, img, Options{Detect: true, Classify: true, Recognize: true})
		require.NoError(b, err)
	}
}

func BenchmarkCachedRun_Hit(b *testing.B) {
	page := letterPage()
	cp, _, _ := newCached(b, page, 1<<20)
	img := page.Image()
	ctx := context.Background()
	_, err := cp.Run(ctx, img, DefaultOptions())
	require.NoError(b, err)

	b.ReportAllocs()
	for b.Loop() {
		_, err := cp.Run(ctx, img, DefaultOptions())
		require.NoError(b, err)
	}
}

func BenchmarkRunMany(b *testing.B) {
	page := letterPage()
	p, _ := newPipeline(b, page)
	images := make([]image.Image, 8)
	for i := range images {
		images[i] = page.Image()
	}
	ctx := context.Background()

	for b.Loop() {
		_, err := RunMany(ctx, p, images, DefaultOptions(), ParallelConfig{MaxWorkers: 4})
		require.NoError(b, err)
	}
}
