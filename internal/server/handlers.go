package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/MeKo-Tech/scanline/internal/imgproc"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
	"github.com/MeKo-Tech/scanline/internal/version"
)

// formatOverlay returns the input image with the boxes drawn as PNG.
const formatOverlay = "overlay"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Time    string `json:"time"`
	Cache   bool   `json:"cache"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Commit:  version.GitCommit,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Cache:   s.cache != nil,
	})
}

// ocrHandler runs OCR on the multipart field "image". Query or form
// parameters det, cls and rec select stages; format picks the response
// body (json, items, lines, csv or overlay).
func (s *Server) ocrHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := s.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(w, r, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeError(w, r, "failed to parse form data", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, r, "no image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	s.metrics.uploadBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, "failed to read image data", http.StatusBadRequest)
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.writeError(w, r, "invalid image format", http.StatusBadRequest)
		return
	}
	opts, err := s.parseOptions(r)
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	format := r.FormValue("format")

	res, err := s.run(r.Context(), img, opts, "http")
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}

	if format == formatOverlay {
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, pipeline.RenderOverlay(img, res, 2)); err != nil {
			slog.Error("failed to encode overlay", "error", err)
		}
		return
	}
	body, err := pipeline.Format(res, format, s.cfg.RowThreshold)
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	_, _ = w.Write(body)
}

func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cache == nil {
		s.writeError(w, r, "cache disabled", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cache == nil {
		s.writeError(w, r, "cache disabled", http.StatusNotFound)
		return
	}
	if err := s.cache.Clear(r.Context()); err != nil {
		s.writeError(w, r, fmt.Sprintf("clear cache: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// run executes one OCR request under the configured timeout and records
// its metrics.
func (s *Server) run(ctx context.Context, img image.Image, opts pipeline.Options, transport string) (*pipeline.Result, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	res, err := s.runner.Run(ctx, img, opts)
	if err != nil {
		s.metrics.ocrRequests.WithLabelValues(transport, "error").Inc()
		slog.Warn("ocr failed", "request_id", RequestID(ctx), "transport", transport, "error", err)
		return nil, err
	}
	s.metrics.ocrRequests.WithLabelValues(transport, "success").Inc()
	s.metrics.ocrRegions.Observe(float64(len(res.Boxes)))
	return res, nil
}

// parseOptions reads det, cls and rec. When none is given the server
// defaults apply; otherwise missing ones are off.
func (s *Server) parseOptions(r *http.Request) (pipeline.Options, error) {
	var (
		opts pipeline.Options
		set  bool
	)
	for _, f := range []struct {
		name string
		dst  *bool
	}{{"det", &opts.Detect}, {"cls", &opts.Classify}, {"rec", &opts.Recognize}} {
		raw := r.FormValue(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid %s value %q", f.name, raw)
		}
		*f.dst, set = v, true
	}
	if !set {
		return s.cfg.DefaultOptions, nil
	}
	if opts == (pipeline.Options{}) {
		return opts, errors.New("at least one of det, cls, rec must be enabled")
	}
	return opts, nil
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var (
		invalid *imgproc.InvalidImageError
		stage   *pipeline.StageError
	)
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = 499
	}
	resp := ErrorResponse{Error: err.Error(), RequestID: RequestID(r.Context())}
	if errors.As(err, &stage) {
		resp.Stage = stage.Stage
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, message string, status int) {
	s.writeJSON(w, status, ErrorResponse{Error: message, RequestID: RequestID(r.Context())})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func contentType(format string) string {
	switch format {
	case pipeline.FormatLines:
		return "text/plain; charset=utf-8"
	case pipeline.FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}
