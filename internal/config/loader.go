package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name of configuration files (without extension).
	ConfigFileName = "scanline"

	// EnvPrefix is the prefix of environment variables, e.g. SCANLINE_CACHE_BACKEND.
	EnvPrefix = "SCANLINE"
)

// Loader reads Config from files, environment variables and bound flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader over the global viper instance, which is the
// one cobra flags are bound to.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith returns a loader over v.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the configuration. configFile may be empty, in which case the
// search paths are tried and a missing file is not an error.
func (l *Loader) Load(configFile string) (*Config, error) {
	cfg, err := l.LoadWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final Validate call; the
// config show command uses it to print broken configurations.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			l.v.AddConfigPath(p)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// SearchPaths returns the directories searched for scanline.yaml, in order.
func SearchPaths() []string {
	paths := []string{"."}
	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if dir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && dir != "" {
		paths = append(paths, filepath.Join(dir, "scanline"))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", "scanline"))
	}
	return append(paths, "/etc/scanline")
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key; viper only maps environment variables
// onto keys it knows about.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("server_models", d.ServerModel)
	l.v.SetDefault("models.detector", d.Models.Detector)
	l.v.SetDefault("models.classifier", d.Models.Classifier)
	l.v.SetDefault("models.recognizer", d.Models.Recognizer)
	l.v.SetDefault("models.dictionary", d.Models.Dictionary)

	l.v.SetDefault("runtime.lib_path", d.Runtime.LibPath)
	l.v.SetDefault("runtime.num_threads", d.Runtime.NumThreads)
	l.v.SetDefault("runtime.gpu.use_gpu", d.Runtime.GPU.UseGPU)
	l.v.SetDefault("runtime.gpu.device_id", d.Runtime.GPU.DeviceID)
	l.v.SetDefault("runtime.gpu.mem_limit", d.Runtime.GPU.MemLimit)
	l.v.SetDefault("runtime.gpu.arena_extend_strategy", d.Runtime.GPU.ArenaExtendStrategy)

	det := d.Pipeline.Detector
	l.v.SetDefault("pipeline.detector.limit_side_len", det.LimitSideLen)
	l.v.SetDefault("pipeline.detector.limit_type", det.LimitType)
	l.v.SetDefault("pipeline.detector.thresh", det.Thresh)
	l.v.SetDefault("pipeline.detector.box_thresh", det.BoxThresh)
	l.v.SetDefault("pipeline.detector.unclip_ratio", det.UnclipRatio)
	l.v.SetDefault("pipeline.detector.max_candidates", det.MaxCandidates)
	l.v.SetDefault("pipeline.detector.min_size", det.MinSize)
	l.v.SetDefault("pipeline.detector.score_mode", det.ScoreMode)
	l.v.SetDefault("pipeline.detector.neighborhood", det.Neighborhood)
	l.v.SetDefault("pipeline.detector.dilate", det.Dilate)

	cls := d.Pipeline.Classifier
	l.v.SetDefault("pipeline.classifier.image_height", cls.ImageHeight)
	l.v.SetDefault("pipeline.classifier.image_width", cls.ImageWidth)
	l.v.SetDefault("pipeline.classifier.batch_num", cls.BatchNum)
	l.v.SetDefault("pipeline.classifier.thresh", cls.Thresh)

	rec := d.Pipeline.Recognizer
	l.v.SetDefault("pipeline.recognizer.image_height", rec.ImageHeight)
	l.v.SetDefault("pipeline.recognizer.max_width", rec.MaxWidth)
	l.v.SetDefault("pipeline.recognizer.batch_num", rec.BatchNum)
	l.v.SetDefault("pipeline.recognizer.dict_space", rec.DictSpace)

	l.v.SetDefault("pipeline.classify", d.Pipeline.Classify)
	l.v.SetDefault("pipeline.drop_score", d.Pipeline.DropScore)
	l.v.SetDefault("pipeline.row_threshold", d.Pipeline.RowThreshold)
	l.v.SetDefault("pipeline.max_workers", d.Pipeline.MaxWorkers)

	l.v.SetDefault("cache.backend", d.Cache.Backend)
	l.v.SetDefault("cache.url", d.Cache.URL)
	l.v.SetDefault("cache.namespace", d.Cache.Namespace)
	l.v.SetDefault("cache.max_bytes", d.Cache.MaxBytes)
	l.v.SetDefault("cache.ttl", d.Cache.TTL)
	l.v.SetDefault("cache.model_version", d.Cache.ModelVersion)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.overlay_dir", d.Output.OverlayDir)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout", d.Server.Timeout)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_day", d.Server.RequestsPerDay)
}
