package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/scanline/internal/cache"
	"github.com/MeKo-Tech/scanline/internal/detector"
	"github.com/MeKo-Tech/scanline/internal/imgproc"
	"github.com/MeKo-Tech/scanline/internal/models"
	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/MeKo-Tech/scanline/internal/orientation"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
	"github.com/MeKo-Tech/scanline/internal/recognizer"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{pipeline.FormatJSON, pipeline.FormatItems, pipeline.FormatLines, pipeline.FormatCSV}
	validBackends  = []string{BackendNone, BackendMemory, BackendRedis, BackendPostgres}
)

// DefaultConfig returns a configuration with the stage defaults of each
// package and an in-memory cache.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	cls := orientation.DefaultConfig()
	rec := recognizer.DefaultConfig()
	pl := pipeline.DefaultConfig()
	cc := cache.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Runtime:   RuntimeConfig{GPU: onnx.DefaultGPUConfig()},
		Pipeline: PipelineConfig{
			Detector: DetectorConfig{
				LimitSideLen:  det.LimitSideLen,
				LimitType:     det.LimitType.String(),
				Thresh:        float64(det.Thresh),
				BoxThresh:     det.BoxThresh,
				UnclipRatio:   det.UnclipRatio,
				MaxCandidates: det.MaxCandidates,
				MinSize:       det.MinSize,
				ScoreMode:     det.ScoreMode.String(),
				Neighborhood:  int(det.Neighborhood),
				Dilate:        det.Dilate,
			},
			Classifier: ClassifierConfig{
				ImageHeight: cls.ImageHeight,
				ImageWidth:  cls.ImageWidth,
				BatchNum:    cls.BatchNum,
				Thresh:      cls.Thresh,
			},
			Recognizer: RecognizerConfig{
				ImageHeight: rec.ImageHeight,
				MaxWidth:    rec.MaxWidth,
				BatchNum:    rec.BatchNum,
				DictSpace:   pl.DictSpace,
			},
			DropScore:    pl.DropScore,
			RowThreshold: pl.RowThreshold,
		},
		Cache: CacheConfig{
			Backend:      BackendMemory,
			Namespace:    "scanline",
			MaxBytes:     cc.MaxBytes,
			TTL:          cc.TTL,
			ModelVersion: "v1",
		},
		Output: OutputConfig{Format: pipeline.FormatJSON},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if _, err := c.ToPipelineConfig(); err != nil {
		return err
	}
	if c.Pipeline.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", c.Pipeline.MaxWorkers)
	}
	if err := c.Runtime.GPU.Validate(); err != nil {
		return fmt.Errorf("gpu: %w", err)
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateCache() error {
	cc := c.Cache
	if !slices.Contains(validBackends, cc.Backend) {
		return fmt.Errorf("invalid cache backend: %s (must be one of: %s)", cc.Backend, strings.Join(validBackends, ", "))
	}
	if cc.Backend == BackendNone {
		return nil
	}
	if (cc.Backend == BackendRedis || cc.Backend == BackendPostgres) && cc.URL == "" {
		return fmt.Errorf("cache backend %s requires cache.url", cc.Backend)
	}
	if cc.Namespace == "" {
		return errors.New("cache namespace must not be empty")
	}
	if err := c.ToCacheConfig().Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	switch {
	case s.Port < 1 || s.Port > 65535:
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", s.Port)
	case s.MaxUploadMB <= 0:
		return fmt.Errorf("max upload size must be positive, got %d", s.MaxUploadMB)
	case s.Timeout < 0 || s.ShutdownTimeout < 0:
		return errors.New("server timeouts must not be negative")
	case s.RequestsPerMinute < 0 || s.RequestsPerDay < 0:
		return errors.New("request limits must not be negative")
	}
	return nil
}

// ToPipelineConfig converts the file settings into a validated
// pipeline.Config.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	p := c.Pipeline
	limit, err := imgproc.ParseLimitType(p.Detector.LimitType)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("detector: %w", err)
	}
	mode, err := detector.ParseScoreMode(p.Detector.ScoreMode)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("detector: %w", err)
	}
	cfg := pipeline.Config{
		Detector: detector.Config{
			LimitSideLen:  p.Detector.LimitSideLen,
			LimitType:     limit,
			Thresh:        float32(p.Detector.Thresh),
			BoxThresh:     p.Detector.BoxThresh,
			UnclipRatio:   p.Detector.UnclipRatio,
			MaxCandidates: p.Detector.MaxCandidates,
			MinSize:       p.Detector.MinSize,
			ScoreMode:     mode,
			Neighborhood:  detector.Neighborhood(p.Detector.Neighborhood),
			Dilate:        p.Detector.Dilate,
		},
		Classifier: orientation.Config{
			ImageHeight: p.Classifier.ImageHeight,
			ImageWidth:  p.Classifier.ImageWidth,
			BatchNum:    p.Classifier.BatchNum,
			Thresh:      p.Classifier.Thresh,
		},
		Recognizer: recognizer.Config{
			ImageHeight: p.Recognizer.ImageHeight,
			MaxWidth:    p.Recognizer.MaxWidth,
			BatchNum:    p.Recognizer.BatchNum,
		},
		DropScore:    p.DropScore,
		RowThreshold: p.RowThreshold,
		DictSpace:    p.Recognizer.DictSpace,
	}
	if err := cfg.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return cfg, nil
}

// ToRuntimeConfig returns the ONNX Runtime settings.
func (c *Config) ToRuntimeConfig() pipeline.RuntimeConfig {
	return pipeline.RuntimeConfig{LibPath: c.Runtime.LibPath, NumThreads: c.Runtime.NumThreads, GPU: c.Runtime.GPU}
}

// ModelFiles returns the model files to load: explicit overrides first,
// then the defaults under the models directory.
func (c *Config) ModelFiles() models.Set {
	return c.Models.Merge(models.Resolve(c.ModelsDir, c.ServerModel))
}

// ToCacheConfig returns the cache budget settings.
func (c *Config) ToCacheConfig() cache.Config {
	return cache.Config{MaxBytes: c.Cache.MaxBytes, TTL: c.Cache.TTL}
}

// DefaultOptions returns the stages a run performs by default.
func (c *Config) DefaultOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Classify = c.Pipeline.Classify
	return opts
}

// ToYAML renders the configuration as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
