package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/scanline/internal/batch"
	"github.com/MeKo-Tech/scanline/internal/common"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
)

var imageCmd = &cobra.Command{
	Use:   "image <files or dirs...>",
	Short: "Run OCR on image files",
	Long: `Run detection and recognition on one or more images.

Formats: json (default), items, lines, csv.

Examples:
  scanline image page.png
  scanline image a.jpg b.jpg --format lines
  scanline image page.png --det=false   # treat the image as one text line
  scanline image page.png --overlay-dir out/
  scanline image scans/ -r --exclude '*_overlay.png'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImage,
}

func init() {
	f := imageCmd.Flags()
	f.StringP("format", "f", "", "output format (json, items, lines, csv)")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.String("overlay-dir", "", "write a PNG with the boxes drawn for every input into this directory")
	f.Bool("det", true, "run text detection")
	f.Bool("cls", false, "run the upside-down line classifier")
	f.Bool("rec", true, "run text recognition")
	f.Int("workers", 0, "images processed concurrently (0 = number of CPUs)")
	f.Bool("no-cache", false, "bypass the result cache")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "file globs to take from directories (default: common image extensions)")
	f.StringSlice("exclude", nil, "file globs to skip")

	_ = viper.BindPFlag("output.format", f.Lookup("format"))
	_ = viper.BindPFlag("output.file", f.Lookup("output"))
	_ = viper.BindPFlag("output.overlay_dir", f.Lookup("overlay-dir"))
	_ = viper.BindPFlag("pipeline.classify", f.Lookup("cls"))
	_ = viper.BindPFlag("pipeline.max_workers", f.Lookup("workers"))
}

// fileResult is one entry of the multi-file JSON output.
type fileResult struct {
	File   string           `json:"file"`
	Result *pipeline.Result `json:"result"`
}

func runImage(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	ctx := cmd.Context()
	det, _ := cmd.Flags().GetBool("det")
	rec, _ := cmd.Flags().GetBool("rec")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	opts := pipeline.Options{Detect: det, Classify: cfg.Pipeline.Classify, Recognize: rec}
	if opts == (pipeline.Options{}) {
		return errors.New("at least one of --det, --cls, --rec must be enabled")
	}

	recursive, _ := cmd.Flags().GetBool("recursive")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	files, err := batch.Discover(args, batch.DiscoverOptions{Recursive: recursive, Include: include, Exclude: exclude})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no image files found")
	}

	images := make([]image.Image, len(files))
	for i, path := range files {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		images[i] = img
	}

	a, err := openApp(ctx, cfg, noCache)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to release resources", "error", err)
		}
	}()
	sw := common.NewStopwatch()
	a.pipeline.Observe(func(stage string, d time.Duration) {
		slog.Debug("stage finished", "stage", stage, "duration", d)
	})

	results, err := pipeline.RunMany(ctx, a.runner, images, opts, pipeline.ParallelConfig{
		MaxWorkers: cfg.Pipeline.MaxWorkers,
		Progress:   pipeline.NewLogProgressCallback(slog.Default()),
	})
	if err != nil {
		return err
	}
	sw.Lap("ocr")
	slog.Info("ocr finished", "images", len(images), "timing", sw)

	if dir := cfg.Output.OverlayDir; dir != "" {
		if err := writeOverlays(dir, files, images, results); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if cfg.Output.File != "" {
		f, err := os.Create(cfg.Output.File)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	return writeResults(out, cfg.Output.Format, cfg.Pipeline.RowThreshold, files, results)
}

// writeResults prints one result as is and several results per file.
func writeResults(w io.Writer, format string, rowThreshold float64, files []string, results []*pipeline.Result) error {
	if len(results) == 1 {
		body, err := pipeline.Format(results[0], format, rowThreshold)
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}

	switch strings.ToLower(format) {
	case "", pipeline.FormatJSON:
		all := make([]fileResult, len(results))
		for i, r := range results {
			all[i] = fileResult{File: files[i], Result: r}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	default:
		for i, r := range results {
			body, err := pipeline.Format(r, format, rowThreshold)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "== %s ==\n%s\n", files[i], body); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeOverlays(dir string, files []string, images []image.Image, results []*pipeline.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create overlay dir: %w", err)
	}
	for i, res := range results {
		name := strings.TrimSuffix(filepath.Base(files[i]), filepath.Ext(files[i])) + "_overlay.png"
		path := filepath.Join(dir, name)
		if err := imaging.Save(pipeline.RenderOverlay(images[i], res, 2), path); err != nil {
			return fmt.Errorf("save overlay %s: %w", path, err)
		}
		slog.Debug("overlay written", "path", path)
	}
	return nil
}
