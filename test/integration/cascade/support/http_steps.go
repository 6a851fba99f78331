package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/MeKo-Tech/oryza/internal/server"
	"github.com/MeKo-Tech/oryza/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

func (s *State) registerHTTPSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the classification server is running$`, s.theClassificationServerIsRunning)
	sc.Step(`^I send GET "([^"]*)"$`, s.iSendGET)
	sc.Step(`^I upload a leaf image as "([^"]*)" to "([^"]*)"$`, s.iUploadALeafImageAs)
	sc.Step(`^I upload garbage as "([^"]*)" to "([^"]*)"$`, s.iUploadGarbageAs)
	sc.Step(`^I post an empty form to "([^"]*)"$`, s.iPostAnEmptyFormTo)
	sc.Step(`^the response status is (\d+)$`, s.theResponseStatusIs)
	sc.Step(`^the response body is "([^"]*)"$`, s.theResponseBodyIs)
	sc.Step(`^the JSON field "([^"]*)" is "([^"]*)"$`, s.theJSONFieldIs)
	sc.Step(`^the response has header "([^"]*)"$`, s.theResponseHasHeader)
}

func (s *State) theClassificationServerIsRunning() error {
	table, err := disease.NewTable(testutil.ThreeClassRecords())
	if err != nil {
		return err
	}
	p, err := pipeline.NewBuilder().
		WithRuntime(testutil.ScenarioRuntime(0.9)).
		WithTable(table).
		Build()
	if err != nil {
		return err
	}
	srv, err := server.NewServer(server.Config{MaxUploadMB: 2, TimeoutSec: 10, Version: "test"}, p)
	if err != nil {
		return err
	}
	s.server = httptest.NewServer(srv.Handler())
	return nil
}

func (s *State) do(req *http.Request) error {
	resp, err := s.server.Client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	s.body, err = io.ReadAll(resp.Body)
	s.status = resp.StatusCode
	s.headers = resp.Header
	return err
}

func (s *State) iSendGET(path string) error {
	if s.server == nil {
		return fmt.Errorf("server is not running")
	}
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	if err != nil {
		return err
	}
	return s.do(req)
}

func (s *State) upload(path, field, filename string, data []byte) error {
	if s.server == nil {
		return fmt.Errorf("server is not running")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	} else if err := mw.WriteField("note", "no image"); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func (s *State) iUploadALeafImageAs(filename, path string) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, testutil.LeafImage(32, 24), imaging.PNG); err != nil {
		return err
	}
	return s.upload(path, "image", filename, buf.Bytes())
}

func (s *State) iUploadGarbageAs(filename, path string) error {
	return s.upload(path, "image", filename, []byte("definitely not an image"))
}

func (s *State) iPostAnEmptyFormTo(path string) error {
	return s.upload(path, "", "", nil)
}

func (s *State) theResponseStatusIs(code int) error {
	if s.status != code {
		return fmt.Errorf("status %d, want %d (body %s)", s.status, code, s.body)
	}
	return nil
}

func (s *State) theResponseBodyIs(want string) error {
	if got := strings.TrimSpace(string(s.body)); got != want {
		return fmt.Errorf("body %q, want %q", got, want)
	}
	return nil
}

func (s *State) theJSONFieldIs(field, want string) error {
	var doc map[string]any
	if err := json.Unmarshal(s.body, &doc); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	v, ok := doc[field]
	if !ok {
		return fmt.Errorf("field %q missing in %s", field, s.body)
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("field %q is %q, want %q", field, got, want)
	}
	return nil
}

func (s *State) theResponseHasHeader(name string) error {
	if len(s.headers[http.CanonicalHeaderKey(name)]) == 0 || s.headers[http.CanonicalHeaderKey(name)][0] == "" {
		return fmt.Errorf("header %s missing", name)
	}
	return nil
}
