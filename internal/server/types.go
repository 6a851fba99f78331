package server

import (
	"context"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/MeKo-Tech/oryza/internal/common"
	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
)

// Classifier is the part of the cascade the server needs.
type Classifier interface {
	RunTraced(ctx context.Context, img image.Image) (*pipeline.Result, error)
	Info() map[string]any
	Table() *disease.Table
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	classifier  Classifier
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	version     string
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	Version     string
	RateLimit   RateLimitConfig
}

// RateLimitConfig holds per-client quotas. Zero values disable a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// IndexMessage is the plain-text body of GET /.
const IndexMessage = "Rice Disease Detection Backend is Running ✅"

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string               `json:"status"`
	Version   string               `json:"version,omitempty"`
	Time      string               `json:"time"`
	Classes   int                  `json:"classes"`
	Resources common.ResourceStats `json:"resources"`
}

// ModelsResponse is returned by /models.
type ModelsResponse struct {
	Pipeline map[string]any `json:"pipeline"`
}

// DiseasesResponse is returned by /diseases.
type DiseasesResponse struct {
	Diseases []DiseaseEntry `json:"diseases"`
	Count    int            `json:"count"`
}

// DiseaseEntry is one table row with its class index.
type DiseaseEntry struct {
	ClassIndex  int    `json:"class_index"`
	Disease     string `json:"disease"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
}

// PredictionResponse is the JSON body of a successful classification.
type PredictionResponse struct {
	Disease            string                 `json:"disease"`
	Severity           string                 `json:"severity"`
	Description        string                 `json:"description"`
	Treatment          string                 `json:"treatment"`
	Confidence         float64                `json:"confidence"`
	ClassIndex         int                    `json:"class_index"`
	HealthStatus       string                 `json:"health_status"`
	OtherPossibilities []pipeline.Alternative `json:"other_possibilities"`
	RequestID          string                 `json:"request_id,omitempty"`
	TimingsMs          map[string]float64     `json:"timings_ms,omitempty"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewPredictionResponse flattens a cascade result into the wire format.
func NewPredictionResponse(res *pipeline.Result) PredictionResponse {
	v := res.Verdict
	alts := v.Alternatives
	if alts == nil {
		alts = []pipeline.Alternative{}
	}
	return PredictionResponse{
		Disease:            v.Record.Name,
		Severity:           string(v.Record.Severity),
		Description:        v.Record.Description,
		Treatment:          v.Record.Treatment,
		Confidence:         v.Confidence,
		ClassIndex:         v.ClassIndex,
		HealthStatus:       string(v.HealthStatus()),
		OtherPossibilities: alts,
		RequestID:          res.RequestID,
		TimingsMs:          res.Timings.Millis(),
	}
}

// NewServer creates a server around an already built classifier. The
// server takes ownership of it and closes it in Close.
func NewServer(config Config, classifier Classifier) (*Server, error) {
	if classifier == nil {
		return nil, errors.New("server requires a classifier")
	}
	s := &Server{
		classifier:  classifier,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		version:     config.Version,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 10
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(
			config.RateLimit.RequestsPerMinute,
			config.RateLimit.RequestsPerHour,
			config.RateLimit.MaxRequestsPerDay,
			config.RateLimit.MaxDataPerDay,
		)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.classifier.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.corsMiddleware(s.rateLimitMiddleware(s.indexHandler)))
	mux.HandleFunc("/predict", s.corsMiddleware(s.rateLimitMiddleware(s.predictHandler)))
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/diseases", s.corsMiddleware(s.diseasesHandler))
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/ws/classify", s.rateLimitMiddleware(s.classifyWebSocketHandler))
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// StartMaintenance runs background housekeeping until ctx ends.
func (s *Server) StartMaintenance(ctx context.Context) {
	if s.rateLimiter != nil {
		s.rateLimiter.StartSweeper(ctx, 10*time.Minute, 24*time.Hour)
	}
}
