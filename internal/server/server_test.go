package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scanline/internal/cache"
	"github.com/MeKo-Tech/scanline/internal/detector"
	"github.com/MeKo-Tech/scanline/internal/orientation"
	"github.com/MeKo-Tech/scanline/internal/pipeline"
	"github.com/MeKo-Tech/scanline/internal/recognizer"
	"github.com/MeKo-Tech/scanline/internal/testutil"
)

func twoWordPage() testutil.Page {
	return testutil.Page{
		Width: 400, Height: 200,
		Regions: []testutil.Region{
			{Rect: rect(220, 60, 340, 76), Text: "world"},
			{Rect: rect(40, 58, 160, 74), Text: "Hello"},
		},
	}
}

type fixture struct {
	server  *Server
	page    testutil.Page
	engines *testutil.Engines
	cache   *cache.Cache
}

func newFixture(t *testing.T, withCache bool, mutate func(*Config)) *fixture {
	t.Helper()
	page := twoWordPage()
	cs := recognizer.DefaultCharset()
	e := testutil.NewEngines(page, cs)
	pcfg := pipeline.DefaultConfig()
	det, err := detector.New(e.Detector, pcfg.Detector)
	require.NoError(t, err)
	cls, err := orientation.New(e.Classifier, pcfg.Classifier)
	require.NoError(t, err)
	rec, err := recognizer.New(e.Recognizer, cs, pcfg.Recognizer)
	require.NoError(t, err)
	p, err := pipeline.New(&pipeline.Sessions{Detector: det, Classifier: cls, Recognizer: rec}, pcfg)
	require.NoError(t, err)

	f := &fixture{page: page, engines: e}
	var runner pipeline.Runner = p
	if withCache {
		f.cache, err = cache.Open(context.Background(), cache.NewMemoryStorage("server"), cache.DefaultConfig())
		require.NoError(t, err)
		runner = pipeline.NewCached(p, f.cache, "test")
	}
	cfg := Config{CORSOrigin: "*", MaxUploadMB: 1, RowThreshold: 10, Timeout: 5 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	f.server, err = New(runner, f.cache, cfg)
	require.NoError(t, err)
	p.Observe(f.server.ObserveStage)
	return f
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "page.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *fixture) post(t *testing.T, query string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "image", data)
	req := httptest.NewRequest(http.MethodPost, "/ocr"+query, body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, Config{MaxUploadMB: 1})
	assert.Error(t, err)
	f := newFixture(t, false, nil)
	_, err = New(f.server.runner, nil, Config{})
	assert.Error(t, err)
	assert.Equal(t, pipeline.DefaultOptions(), f.server.cfg.DefaultOptions)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true, nil)
	for _, tc := range []struct {
		method string
		status int
	}{{http.MethodGet, http.StatusOK}, {http.MethodPost, http.StatusMethodNotAllowed}} {
		w := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(w, httptest.NewRequest(tc.method, "/health", nil))
		assert.Equal(t, tc.status, w.Code, tc.method)
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Cache)
	assert.NotEmpty(t, resp.Version)
}

func TestOCR_JSON(t *testing.T) {
	f := newFixture(t, false, nil)
	w := f.post(t, "", f.page.PNG(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Texts, 2)
	assert.Equal(t, "Hello", res.Texts[0].Text)
	assert.Equal(t, "world", res.Texts[1].Text)
	assert.Empty(t, res.Angles)
}

func TestOCR_FormatsAndStages(t *testing.T) {
	f := newFixture(t, false, nil)

	w := f.post(t, "?format=lines", f.page.PNG(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello world\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = f.post(t, "?format=csv", f.page.PNG(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 3)

	w = f.post(t, "?det=1", f.page.PNG(t))
	require.Equal(t, http.StatusOK, w.Code)
	var det pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &det))
	assert.Len(t, det.Boxes, 2)
	assert.Empty(t, det.Texts)
	assert.Equal(t, 2, f.engines.Recognizer.Calls(), "detection-only skips recognition")

	w = f.post(t, "?det=true&cls=true&rec=true", f.page.PNG(t))
	require.Equal(t, http.StatusOK, w.Code)
	var full pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &full))
	assert.Len(t, full.Angles, 2)

	w = f.post(t, "?format=overlay", f.page.PNG(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	ov, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, f.page.Image().Bounds(), ov.Bounds())
}

func TestOCR_BadRequests(t *testing.T) {
	f := newFixture(t, false, nil)
	tests := []struct {
		name   string
		query  string
		data   []byte
		status int
	}{
		{"not an image", "", []byte("hello"), http.StatusBadRequest},
		{"bad flag", "?det=maybe", nil, http.StatusBadRequest},
		{"no stage", "?det=0&rec=0", nil, http.StatusBadRequest},
		{"bad format", "?format=xml", nil, http.StatusBadRequest},
		{"too large", "", bytes.Repeat([]byte{0}, 2<<20), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = f.page.PNG(t)
			}
			w := f.post(t, tt.query, data)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, w.Header().Get(RequestIDHeader), resp.RequestID)
		})
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ocr", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOCR_StageFailureNamesStage(t *testing.T) {
	f := newFixture(t, false, nil)
	f.engines.Recognizer.Fn = nil
	w := f.post(t, "", f.page.PNG(t))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pipeline.StageRecognize, resp.Stage)
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t, true, nil)
	require.Equal(t, http.StatusOK, f.post(t, "", f.page.PNG(t)).Code)
	require.Equal(t, http.StatusOK, f.post(t, "", f.page.PNG(t)).Code)
	assert.Equal(t, 1, f.engines.Detector.Calls())

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cache/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(1), st.Hits)

	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, f.cache.Stats().Entries)

	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cache", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	off := newFixture(t, false, nil)
	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/cache/stats", nil),
		httptest.NewRequest(http.MethodDelete, "/cache", nil),
	} {
		w := httptest.NewRecorder()
		off.server.Handler().ServeHTTP(w, r)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, true, nil)
	require.Equal(t, http.StatusOK, f.post(t, "", f.page.PNG(t)).Code)

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	text := string(body)
	for _, want := range []string{
		`scanline_http_requests_total{endpoint="/ocr",method="POST",status="200"} 1`,
		`scanline_ocr_requests_total{status="success",transport="http"} 1`,
		`scanline_stage_duration_seconds_count{stage="detect"} 1`,
		`scanline_stage_duration_seconds_count{stage="recognize"} 1`,
		"scanline_cache_entries 1",
		"scanline_cache_misses_total 1",
	} {
		assert.Contains(t, text, want)
	}
}

func rect(x0, y0, x1, y1 int) image.Rectangle { return image.Rect(x0, y0, x1, y1) }
