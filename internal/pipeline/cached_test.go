package pipeline

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/MeKo-Tech/scanline/internal/cache"
	"github.com/MeKo-Tech/scanline/internal/testutil"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCached(t testing.TB, page testutil.Page, maxBytes int64) (*CachedPipeline, *testutil.Engines, *cache.MemoryStorage) {
	t.Helper()
	p, e := newPipeline(t, page)
	st := cache.NewMemoryStorage("ocr")
	c, err := cache.Open(context.Background(), st, cache.Config{MaxBytes: maxBytes, TTL: time.Hour})
	require.NoError(t, err)
	return NewCached(p, c, "v5"), e, st
}

func TestCachedPipeline_HitSkipsModels(t *testing.T) {
	ctx := context.Background()
	page := letterPage()
	cp, e, _ := newCached(t, page, 1<<20)

	first, err := cp.Run(ctx, page.Image(), DefaultOptions())
	require.NoError(t, err)
	second, err := cp.Run(ctx, page.Image(), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, e.Detector.Calls())
	s := cp.Cache().Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, 1, s.Entries)
}

func TestCachedPipeline_KeyDependsOnPixelsAndStages(t *testing.T) {
	page := letterPage()
	cp, _, _ := newCached(t, page, 1<<20)
	img := page.Image()

	k1, err := cp.Key(img, DefaultOptions())
	require.NoError(t, err)
	k2, err := cp.Key(imaging.Clone(img), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "same pixels, same key")

	k3, _ := cp.Key(img, Options{Detect: true})
	assert.NotEqual(t, k1, k3)

	other := NewCached(cp.Pipeline(), cp.Cache(), "v6")
	k4, _ := other.Key(img, DefaultOptions())
	assert.NotEqual(t, k1, k4)

	img.Set(0, 0, image.Black)
	k5, _ := cp.Key(img, DefaultOptions())
	assert.NotEqual(t, k1, k5)
}

func TestCachedPipeline_UndecodablePayloadIsRecomputed(t *testing.T) {
	ctx := context.Background()
	page := letterPage()
	cp, e, _ := newCached(t, page, 1<<20)
	key, err := cp.Key(page.Image(), DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, cp.Cache().Set(ctx, key, []byte("not json")))

	res, err := cp.Run(ctx, page.Image(), DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Texts, 3)
	assert.Equal(t, 1, e.Detector.Calls())
}

func TestCachedPipeline_TooLargeIsNotCached(t *testing.T) {
	ctx := context.Background()
	page := letterPage()
	cp, e, _ := newCached(t, page, 16)
	_, err := cp.Run(ctx, page.Image(), DefaultOptions())
	require.NoError(t, err)
	_, err = cp.Run(ctx, page.Image(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, e.Detector.Calls())
	assert.Zero(t, cp.Cache().Stats().Entries)
}

func TestCachedPipeline_ErrorsAreNotCached(t *testing.T) {
	page := letterPage()
	cp, _, _ := newCached(t, page, 1<<20)
	_, err := cp.Run(context.Background(), nil, DefaultOptions())
	assert.Error(t, err)
	_, err = cp.Run(context.Background(), page.Image(), Options{})
	assert.Error(t, err)
	assert.Zero(t, cp.Cache().Stats().Entries)
}
