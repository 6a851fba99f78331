package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *disease.Table {
	t.Helper()
	table, err := disease.NewTable([]disease.Record{
		{Name: "Brown Spot", Severity: disease.SeverityMedium, Description: "brown lesions", Treatment: "fungicide"},
		{Name: "Leaf Blast", Severity: disease.SeverityHigh, Description: "grey lesions", Treatment: "tricyclazole"},
		{Name: "Healthy", Severity: disease.SeverityNone, Description: "healthy", Treatment: "none"},
	})
	require.NoError(t, err)
	return table
}

// leafRuntime always diagnoses Leaf Blast at 85%.
func leafRuntime() *engine.StaticRuntime {
	return engine.NewStaticRuntime().
		SetOutput(models.LeafGate, 0.9).
		SetOutput(models.ExtractorA, 0.1, 0.2, 0.7).
		SetOutput(models.ExtractorB, 0.4, 0.4).
		SetOutput(models.Meta, 0.05, 0.85, 0.10)
}

func newTestServer(t *testing.T, rt engine.Runtime, cfg Config) *Server {
	t.Helper()
	p, err := pipeline.NewBuilder().WithRuntime(rt).WithTable(testTable(t)).Build()
	require.NoError(t, err)
	s, err := NewServer(cfg, p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := range 12 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{40, 160, 50, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "nothing attached"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
