package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scanline/internal/config"
	"github.com/MeKo-Tech/scanline/internal/geometry"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
)

// execute runs the CLI in an empty environment and resets every flag
// afterwards so tests do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "scanline dev")
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "config", "show", "--cache-backend", "none")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: none")
	assert.Contains(t, out, "port: 8080")
}

func TestConfigShow_JSON(t *testing.T) {
	out, err := execute(t, "config", "show", "--json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, config.BackendMemory, cfg.Cache.Backend)
}

func TestConfigShow_EnvOverride(t *testing.T) {
	t.Setenv("SCANLINE_SERVER_PORT", "9300")
	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 9300")
}

func TestImageCommand_MissingModels(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.png")
	require.NoError(t, imaging.Save(imaging.New(64, 32, color.White), page))

	_, err := execute(t, "image", "--models-dir", filepath.Join(dir, "models"), "--cache-backend", "none", page)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestImageCommand_BadInput(t *testing.T) {
	_, err := execute(t, "image", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.png")

	_, err = execute(t, "image", "--det=false", "--rec=false", "x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestImageCommand_EmptyDirectory(t *testing.T) {
	_, err := execute(t, "image", t.TempDir())
	assert.ErrorContains(t, err, "no image files found")
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"warn", false, slog.LevelWarn},
		{"ERROR", false, slog.LevelError},
		{"nonsense", false, slog.LevelInfo},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(&config.Config{LogLevel: tt.level, Verbose: tt.verbose}))
		})
	}
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Cache.Backend = config.BackendNone
	c, closer, err := openCache(ctx, &cfg)
	require.NoError(t, err)
	assert.Nil(t, c)
	require.NoError(t, closer.Close())

	cfg.Cache.Backend = config.BackendMemory
	c, closer, err = openCache(ctx, &cfg)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NoError(t, c.Set(ctx, "k", []byte("payload")))
	assert.Equal(t, 1, c.Stats().Entries)
	require.NoError(t, closer.Close())

	cfg.Cache.Backend = "etcd"
	_, _, err = openCache(ctx, &cfg)
	assert.ErrorContains(t, err, "unknown cache backend")
}

func TestWriteResults(t *testing.T) {
	box := geometry.Box{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 0, Y: 5}}
	results := []*pipeline.Result{
		{Boxes: []geometry.Box{box}, Texts: []pipeline.TextScore{{Text: "one", Score: 0.9}}},
		{Boxes: []geometry.Box{box}, Texts: []pipeline.TextScore{{Text: "two", Score: 0.8}}},
	}
	files := []string{"a.png", "b.png"}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "json", 10, files, results))
	var all []fileResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "b.png", all[1].File)
	assert.Equal(t, "two", all[1].Result.Texts[0].Text)

	buf.Reset()
	require.NoError(t, writeResults(&buf, "lines", 10, files, results))
	assert.Equal(t, "== a.png ==\none\n\n== b.png ==\ntwo\n\n", buf.String())

	buf.Reset()
	require.NoError(t, writeResults(&buf, "lines", 10, files[:1], results[:1]))
	assert.Equal(t, "one\n", buf.String())

	assert.Error(t, writeResults(&buf, "xml", 10, files, results))
}

func TestWriteOverlays(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "overlays")
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	res := &pipeline.Result{}
	require.NoError(t, writeOverlays(dir, []string{"scans/page.jpg"}, []image.Image{img}, []*pipeline.Result{res}))

	out, err := imaging.Open(filepath.Join(dir, "page_overlay.png"))
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
}
