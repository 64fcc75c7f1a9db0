package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/scanline/internal/config"
	"github.com/MeKo-Tech/scanline/internal/version"
)

var (
	cfgFile string
	// loaded by the persistent pre-run of every command
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scanline",
	Short: "Detection-to-text OCR with a content-addressed result cache",
	Long: `scanline finds text regions in images, optionally corrects upside-down
lines, recognizes the text and caches results by image fingerprint.

Examples:
  scanline image page.png
  scanline image scans/*.jpg --format lines --cls
  scanline serve --port 8080
  scanline cache stats`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return loadConfig(cmd, true) },
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: search ., $HOME, $XDG_CONFIG_HOME/scanline, /etc/scanline)")
	pf.BoolP("verbose", "v", false, "verbose output (same as --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", "", "directory containing the ONNX models and dictionary")
	pf.String("cache-backend", config.BackendMemory, "result cache backend (none, memory, redis, postgres)")
	pf.String("cache-url", "", "redis URL or postgres DSN for the cache backend")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("models_dir", pf.Lookup("models-dir"))
	_ = viper.BindPFlag("cache.backend", pf.Lookup("cache-backend"))
	_ = viper.BindPFlag("cache.url", pf.Lookup("cache-url"))

	rootCmd.SetVersionTemplate(version.String() + "\n")
	rootCmd.AddCommand(imageCmd, serveCmd, cacheCmd, configCmd, versionCmd)
}

// loadConfig reads the configuration and installs the logger.
func loadConfig(cmd *cobra.Command, validate bool) error {
	loader := config.NewLoader()
	load := loader.Load
	if !validate {
		load = loader.LoadWithoutValidation
	}
	cfg, err := load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	globalConfig = cfg
	setupLogging(cmd.ErrOrStderr(), cfg)
	if used := loader.ConfigFileUsed(); used != "" {
		slog.Debug("configuration loaded", "file", used)
	}
	return nil
}

// setupLogging installs a JSON slog handler at the configured level.
func setupLogging(w io.Writer, cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel(cfg)})))
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
