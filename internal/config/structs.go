//nolint:lll
package config

import (
	"time"

	"github.com/MeKo-Tech/scanline/internal/models"
	"github.com/MeKo-Tech/scanline/internal/onnx"
)

// Config is the complete scanline configuration. It is read from a config
// file, SCANLINE_* environment variables and command-line flags.
type Config struct {
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Models overrides individual model files; empty fields fall back to
	// the mobile (or server) defaults under ModelsDir.
	Models      models.Set    `mapstructure:"models" yaml:"models" json:"models"`
	ServerModel bool          `mapstructure:"server_models" yaml:"server_models" json:"server_models"`
	Runtime     RuntimeConfig `mapstructure:"runtime" yaml:"runtime" json:"runtime"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache" json:"cache"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
}

// RuntimeConfig selects the ONNX Runtime library and execution provider.
type RuntimeConfig struct {
	LibPath    string         `mapstructure:"lib_path" yaml:"lib_path" json:"lib_path"`
	NumThreads int            `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU        onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// PipelineConfig holds per-stage settings.
type PipelineConfig struct {
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`

	Classify     bool    `mapstructure:"classify" yaml:"classify" json:"classify"`
	DropScore    float64 `mapstructure:"drop_score" yaml:"drop_score" json:"drop_score"`
	RowThreshold float64 `mapstructure:"row_threshold" yaml:"row_threshold" json:"row_threshold"`
	MaxWorkers   int     `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// DetectorConfig mirrors detector.Config with string enums.
type DetectorConfig struct {
	LimitSideLen  int     `mapstructure:"limit_side_len" yaml:"limit_side_len" json:"limit_side_len"`
	LimitType     string  `mapstructure:"limit_type" yaml:"limit_type" json:"limit_type"`
	Thresh        float64 `mapstructure:"thresh" yaml:"thresh" json:"thresh"`
	BoxThresh     float64 `mapstructure:"box_thresh" yaml:"box_thresh" json:"box_thresh"`
	UnclipRatio   float64 `mapstructure:"unclip_ratio" yaml:"unclip_ratio" json:"unclip_ratio"`
	MaxCandidates int     `mapstructure:"max_candidates" yaml:"max_candidates" json:"max_candidates"`
	MinSize       int     `mapstructure:"min_size" yaml:"min_size" json:"min_size"`
	ScoreMode     string  `mapstructure:"score_mode" yaml:"score_mode" json:"score_mode"`
	Neighborhood  int     `mapstructure:"neighborhood" yaml:"neighborhood" json:"neighborhood"`
	Dilate        bool    `mapstructure:"dilate" yaml:"dilate" json:"dilate"`
}

// ClassifierConfig holds the orientation classifier settings.
type ClassifierConfig struct {
	ImageHeight int     `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	ImageWidth  int     `mapstructure:"image_width" yaml:"image_width" json:"image_width"`
	BatchNum    int     `mapstructure:"batch_num" yaml:"batch_num" json:"batch_num"`
	Thresh      float64 `mapstructure:"thresh" yaml:"thresh" json:"thresh"`
}

// RecognizerConfig holds recognition settings.
type RecognizerConfig struct {
	ImageHeight int  `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	MaxWidth    int  `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	BatchNum    int  `mapstructure:"batch_num" yaml:"batch_num" json:"batch_num"`
	DictSpace   bool `mapstructure:"dict_space" yaml:"dict_space" json:"dict_space"`
}

// Cache backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// CacheConfig selects and sizes the result cache.
type CacheConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	URL          string        `mapstructure:"url" yaml:"url" json:"url"` // redis URL or postgres DSN
	Namespace    string        `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
	MaxBytes     int64         `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
	TTL          time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	ModelVersion string        `mapstructure:"model_version" yaml:"model_version" json:"model_version"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string        `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// Per-client request limits; 0 disables a window.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerDay    int `mapstructure:"requests_per_day" yaml:"requests_per_day" json:"requests_per_day"`
}
