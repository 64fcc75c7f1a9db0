package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/scanline/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCR HTTP server",
	Long: `Start an HTTP server exposing the OCR pipeline.

Endpoints:
  POST   /ocr          multipart upload (field "image"), query: format, det, cls, rec
  GET    /ws/ocr       WebSocket; binary frames are images, text frames JSON requests
  GET    /health       liveness and cache summary
  GET    /cache/stats  cache counters
  DELETE /cache        drop every cached result
  GET    /metrics      Prometheus metrics`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("host", "localhost", "listen host")
	f.IntP("port", "p", 8080, "listen port")
	f.String("cors-origin", "*", "Access-Control-Allow-Origin value")
	f.Int("max-upload-mb", 50, "maximum upload size in MB")
	f.Int("rpm", 0, "requests per minute per client (0 = unlimited)")
	f.Int("rpd", 0, "requests per day per client (0 = unlimited)")

	_ = viper.BindPFlag("server.host", f.Lookup("host"))
	_ = viper.BindPFlag("server.port", f.Lookup("port"))
	_ = viper.BindPFlag("server.cors_origin", f.Lookup("cors-origin"))
	_ = viper.BindPFlag("server.max_upload_mb", f.Lookup("max-upload-mb"))
	_ = viper.BindPFlag("server.requests_per_minute", f.Lookup("rpm"))
	_ = viper.BindPFlag("server.requests_per_day", f.Lookup("rpd"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := globalConfig
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to release resources", "error", err)
		}
	}()

	srv, err := server.New(a.runner, a.cache, server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		CORSOrigin:        cfg.Server.CORSOrigin,
		MaxUploadMB:       int64(cfg.Server.MaxUploadMB),
		Timeout:           cfg.Server.Timeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		DefaultOptions:    cfg.DefaultOptions(),
		RowThreshold:      cfg.Pipeline.RowThreshold,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		RequestsPerDay:    cfg.Server.RequestsPerDay,
	})
	if err != nil {
		return err
	}
	a.pipeline.Observe(srv.ObserveStage)
	return srv.Run(ctx)
}
