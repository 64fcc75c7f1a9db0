// Package server exposes the OCR pipeline and its result cache over HTTP
// and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/scanline/internal/cache"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
)

// Config holds server settings.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	Timeout         time.Duration // per-request OCR deadline, 0 for none
	ShutdownTimeout time.Duration
	// DefaultOptions are the stages run when a request does not choose.
	DefaultOptions pipeline.Options
	RowThreshold   float64
	// Per-client request limits; 0 disables a window.
	RequestsPerMinute int
	RequestsPerDay    int
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	cfg     Config
	runner  pipeline.Runner
	cache   *cache.Cache // nil when caching is off
	limiter *RateLimiter
	metrics *metrics
}

// New returns a server running OCR through runner. c may be nil.
func New(runner pipeline.Runner, c *cache.Cache, cfg Config) (*Server, error) {
	if runner == nil {
		return nil, errors.New("server needs a pipeline")
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("max upload size must be positive, got %d", cfg.MaxUploadMB)
	}
	if cfg.DefaultOptions == (pipeline.Options{}) {
		cfg.DefaultOptions = pipeline.DefaultOptions()
	}
	s := &Server{cfg: cfg, runner: runner, cache: c, metrics: newMetrics(c)}
	if cfg.RequestsPerMinute > 0 || cfg.RequestsPerDay > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerMinute, cfg.RequestsPerDay)
	}
	return s, nil
}

// ObserveStage records a pipeline stage duration; install it with
// Pipeline.Observe.
func (s *Server) ObserveStage(stage string, d time.Duration) {
	s.metrics.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.instrument("/health", s.healthHandler))
	mux.HandleFunc("/ocr", s.instrument("/ocr", s.rateLimitMiddleware(s.ocrHandler)))
	mux.HandleFunc("/cache/stats", s.instrument("/cache/stats", s.cacheStatsHandler))
	mux.HandleFunc("/cache", s.instrument("/cache", s.cacheClearHandler))
	mux.HandleFunc("/ws/ocr", s.rateLimitMiddleware(s.ocrWebSocketHandler))
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return requestIDMiddleware(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	slog.Info("server shutting down", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
