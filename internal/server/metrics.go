package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/oryza/internal/pipeline"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oryza_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oryza_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Cascade metrics
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oryza_classifications_total",
			Help: "Total number of classified images by verdict",
		},
		[]string{"source", "verdict"}, // source: http, websocket
	)

	classificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oryza_classification_duration_seconds",
			Help:    "End-to-end cascade duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oryza_stage_duration_seconds",
			Help:    "Duration of each cascade stage in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"stage"},
	)

	diagnosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oryza_diagnoses_total",
			Help: "Diagnoses by disease name",
		},
		[]string{"disease"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oryza_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // minute, hour, requests, data
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oryza_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oryza_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oryza_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // sent, received
	)
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// observeResult records one cascade run. res may be nil when decoding failed.
func observeResult(source string, res *pipeline.Result, elapsed time.Duration) {
	classificationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if res == nil {
		classificationsTotal.WithLabelValues(source, "invalid").Inc()
		return
	}
	classificationsTotal.WithLabelValues(source, string(res.Verdict.Kind)).Inc()
	for _, t := range res.Timings {
		stageDuration.WithLabelValues(t.Name).Observe(t.Duration.Seconds())
	}
	if res.Verdict.Kind == pipeline.KindDiagnosis {
		diagnosesTotal.WithLabelValues(res.Verdict.Record.Name).Inc()
	}
}
