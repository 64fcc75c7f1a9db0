package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/scanline/internal/cache"
)

// metrics are registered per server so tests can build several servers.
type metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ocrRequests   *prometheus.CounterVec
	ocrRegions    prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	uploadBytes   prometheus.Histogram
	rateLimitHits *prometheus.CounterVec
	wsConnections prometheus.Gauge
	wsMessages    *prometheus.CounterVec
}

func newMetrics(c *cache.Cache) *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanline_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		ocrRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanline_ocr_requests_total",
			Help: "Total number of OCR runs",
		}, []string{"transport", "status"}),
		ocrRegions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanline_ocr_regions",
			Help:    "Number of text regions per result",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"stage"}),
		uploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanline_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
		}),
		rateLimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanline_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"window"}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanline_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		}),
		wsMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanline_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		}, []string{"direction"}),
	}

	if c != nil {
		stat := func(pick func(cache.Stats) float64) func() float64 {
			return func() float64 { return pick(c.Stats()) }
		}
		f.NewGaugeFunc(prometheus.GaugeOpts{Name: "scanline_cache_entries", Help: "Cached results"},
			stat(func(s cache.Stats) float64 { return float64(s.Entries) }))
		f.NewGaugeFunc(prometheus.GaugeOpts{Name: "scanline_cache_bytes", Help: "Bytes held by the result cache"},
			stat(func(s cache.Stats) float64 { return float64(s.TotalSize) }))
		f.NewCounterFunc(prometheus.CounterOpts{Name: "scanline_cache_hits_total", Help: "Cache hits"},
			stat(func(s cache.Stats) float64 { return float64(s.Hits) }))
		f.NewCounterFunc(prometheus.CounterOpts{Name: "scanline_cache_misses_total", Help: "Cache misses"},
			stat(func(s cache.Stats) float64 { return float64(s.Misses) }))
		f.NewCounterFunc(prometheus.CounterOpts{Name: "scanline_cache_evictions_total", Help: "Cache evictions"},
			stat(func(s cache.Stats) float64 { return float64(s.Evictions) }))
	}
	return m
}
