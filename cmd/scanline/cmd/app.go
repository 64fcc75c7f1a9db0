package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MeKo-Tech/scanline/internal/cache"
	"github.com/MeKo-Tech/scanline/internal/config"
	"github.com/MeKo-Tech/scanline/internal/models"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
)

// openCache opens the configured result cache. It returns a nil cache for
// the "none" backend. The closer releases the backend connection.
func openCache(ctx context.Context, cfg *config.Config) (*cache.Cache, io.Closer, error) {
	var (
		storage cache.Storage
		closer  io.Closer = nopCloser{}
	)
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return nil, closer, nil
	case config.BackendMemory:
		storage = cache.NewMemoryStorage(cfg.Cache.Namespace)
	case config.BackendRedis:
		rs, err := cache.NewRedisStorage(ctx, cfg.Cache.URL, cfg.Cache.Namespace)
		if err != nil {
			return nil, nil, err
		}
		storage, closer = rs, rs
	case config.BackendPostgres:
		ss, err := cache.OpenPostgres(ctx, cfg.Cache.URL, cfg.Cache.Namespace)
		if err != nil {
			return nil, nil, err
		}
		storage, closer = ss, ss
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	c, err := cache.Open(ctx, storage, cfg.ToCacheConfig())
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	slog.Debug("result cache ready", "backend", cfg.Cache.Backend, "namespace", cfg.Cache.Namespace, "entries", c.Stats().Entries)
	return c, closer, nil
}

// openPipeline loads the models named by cfg.
func openPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, error) {
	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	files := cfg.ModelFiles()
	required := []string{files.Detector, files.Recognizer}
	if cfg.Pipeline.Classify {
		required = append(required, files.Classifier)
	}
	for _, path := range required {
		if err := models.ValidateModelExists(path); err != nil {
			return nil, err
		}
	}
	sessions, err := pipeline.OpenSessions(ctx, files, cfg.ToRuntimeConfig(), pcfg, cfg.Pipeline.Classify)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(sessions, pcfg)
	if err != nil {
		return nil, errors.Join(err, sessions.Close())
	}
	slog.Info("models loaded", "engines", sessions.EngineNames())
	return p, nil
}

// app bundles what the OCR commands run on.
type app struct {
	pipeline *pipeline.Pipeline
	cache    *cache.Cache
	runner   pipeline.Runner
	closers  []io.Closer
}

// openApp loads the pipeline and, unless noCache is set, wraps it with the
// configured cache.
func openApp(ctx context.Context, cfg *config.Config, noCache bool) (*app, error) {
	p, err := openPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{pipeline: p, runner: p, closers: []io.Closer{p}}
	if noCache {
		return a, nil
	}
	c, closer, err := openCache(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.closers = append(a.closers, closer)
	if c != nil {
		a.cache = c
		a.runner = pipeline.NewCached(p, c, cfg.Cache.ModelVersion)
	}
	return a, nil
}

// Close releases the pipeline and the cache connection.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
