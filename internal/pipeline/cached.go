package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/scanline/internal/cache"
	"github.com/disintegration/imaging"
)

// CachedPipeline answers repeated runs from a cache.Cache. Keys cover the
// pixels (re-encoded as PNG, so the upload format does not matter), the
// loaded models with the selected stages, and the model version.
type CachedPipeline struct {
	pipeline     *Pipeline
	cache        *cache.Cache
	modelVersion string
}

// NewCached wraps p with c.
func NewCached(p *Pipeline, c *cache.Cache, modelVersion string) *CachedPipeline {
	return &CachedPipeline{pipeline: p, cache: c, modelVersion: modelVersion}
}

// Pipeline returns the wrapped pipeline.
func (cp *CachedPipeline) Pipeline() *Pipeline { return cp.pipeline }

// Cache returns the result cache.
func (cp *CachedPipeline) Cache() *cache.Cache { return cp.cache }

// Key returns the cache key for running opts on img.
func (cp *CachedPipeline) Key(img image.Image, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("normalize image for fingerprint: %w", err)
	}
	engine := cp.pipeline.Sessions().EngineNames() + "|" + opts.String()
	return cache.Fingerprint(buf.Bytes(), engine, cp.modelVersion), nil
}

// Run returns the cached result for img when present and fresh, otherwise
// runs the pipeline and stores its result. Cache failures are logged and
// never fail the run.
func (cp *CachedPipeline) Run(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	if img == nil {
		return cp.pipeline.Run(ctx, img, opts)
	}
	key, err := cp.Key(img, opts)
	if err != nil {
		return nil, err
	}

	payload, ok, err := cp.cache.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("cache lookup failed", "key", key, "error", err)
	case ok:
		var res Result
		decodeErr := json.Unmarshal(payload, &res)
		if decodeErr == nil {
			slog.Debug("cache hit", "key", key)
			return &res, nil
		}
		slog.Warn("discarding undecodable cached result", "key", key, "error", decodeErr)
		if err := cp.cache.Remove(ctx, key); err != nil {
			slog.Warn("failed to remove cached result", "key", key, "error", err)
		}
	}

	res, err := cp.pipeline.Run(ctx, img, opts)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := cp.cache.Set(ctx, key, data); err != nil {
		if errors.Is(err, cache.ErrEntryTooLarge) {
			slog.Debug("result too large to cache", "key", key, "bytes", len(data))
		} else {
			slog.Warn("cache store failed", "key", key, "error", err)
		}
	}
	return res, nil
}
