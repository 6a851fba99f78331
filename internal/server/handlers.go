package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/oryza/internal/common"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/MeKo-Tech/oryza/internal/utils"
)

const (
	msgNoImage         = "No image provided"
	msgInvalidFileType = "Invalid file type. Only image files are accepted."
	msgInferenceFailed = "Inference failed for one of the models."
	msgEncodeFailed    = "Failed to encode response"
)

// indexHandler answers GET / with a liveness string and POST / with a
// classification restricted to png and jpeg uploads.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, IndexMessage)
	case http.MethodPost:
		s.classifyUpload(w, r, utils.UploadExtensions)
	default:
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// predictHandler classifies an upload in any decodable format.
func (s *Server) predictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.classifyUpload(w, r, utils.SupportedImageExtensions)
}

func (s *Server) classifyUpload(w http.ResponseWriter, r *http.Request, exts []string) {
	limit := s.maxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, fmt.Sprintf("Upload exceeds %d MB", s.maxUploadMB), http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, msgNoImage, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, msgNoImage, http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if !utils.HasExtension(header.Filename, exts) {
		s.writeErrorResponse(w, msgInvalidFileType, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	res, status, err := s.classify(r.Context(), "http", data)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), status)
		return
	}
	w.Header().Set("X-Request-ID", res.RequestID)
	s.writeJSON(w, http.StatusOK, NewPredictionResponse(res))
}

// classify decodes and runs the cascade, mapping failures to a status code
// and a client-safe message.
func (s *Server) classify(ctx context.Context, source string, data []byte) (*pipeline.Result, int, error) {
	start := time.Now()
	img, meta, err := utils.DecodeImage(data)
	if err != nil {
		observeResult(source, nil, time.Since(start))
		return nil, http.StatusBadRequest, fmt.Errorf("Invalid image: %w", errors.Unwrap(err))
	}

	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	res, err := s.classifier.RunTraced(ctx, img)
	observeResult(source, res, time.Since(start))
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			slog.Error("Cascade failed", "source", source, "stage", se.Stage, "error", se.Err,
				"format", meta.Format, "width", meta.Width, "height", meta.Height)
			return res, http.StatusInternalServerError, errors.New(msgInferenceFailed)
		}
		slog.Error("Classification failed", "source", source, "error", err)
		return res, http.StatusInternalServerError, fmt.Errorf("An error occurred: %w", err)
	}

	slog.Info("Image classified",
		"source", source,
		"request_id", res.RequestID,
		"verdict", res.Verdict.Kind,
		"disease", res.Verdict.Record.Name,
		"confidence", res.Verdict.Confidence,
		"format", meta.Format)
	return res, http.StatusOK, nil
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Classes:   s.classifier.Table().Len(),
		Resources: common.CollectResourceStats(r.Context()),
	})
}

// modelsHandler describes the loaded models and the cascade configuration.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, ModelsResponse{Pipeline: s.classifier.Info()})
}

// diseasesHandler lists the disease table in class order.
func (s *Server) diseasesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records := s.classifier.Table().Records()
	entries := make([]DiseaseEntry, len(records))
	for i, rec := range records {
		entries[i] = DiseaseEntry{
			ClassIndex:  i,
			Disease:     rec.Name,
			Severity:    string(rec.Severity),
			Description: rec.Description,
			Treatment:   rec.Treatment,
		}
	}
	s.writeJSON(w, http.StatusOK, DiseasesResponse{Diseases: entries, Count: len(entries)})
}

// writeJSON encodes body before the status goes out, so an unencodable body
// becomes a 500 instead of an empty 200.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Error: msgEncodeFailed})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeErrorResponse writes {"error": message}.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
