// Package support holds the godog step definitions for the cascade suite.
package support

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/cucumber/godog"
)

// State is the per-scenario world.
type State struct {
	table   *disease.Table
	runtime *engine.StaticRuntime
	gateOff bool

	mu       sync.Mutex
	metaSeen []float32

	verdicts []*pipeline.Verdict
	lastErr  error

	server  *httptest.Server
	status  int
	body    []byte
	headers map[string][]string
}

// NewState returns an empty world.
func NewState() *State {
	return &State{runtime: engine.NewStaticRuntime()}
}

// Register wires every step and the scenario cleanup.
func (s *State) Register(sc *godog.ScenarioContext) {
	s.registerCascadeSteps(sc)
	s.registerHTTPSteps(sc)
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if s.server != nil {
			s.server.Close()
		}
		return ctx, err
	})
}

func parseFloats(list string) ([]float32, error) {
	parts := strings.Split(list, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func parseNames(list string) []string {
	parts := strings.Split(list, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// setMeta installs the meta classifier output and records its input.
func (s *State) setMeta(out []float32) {
	s.runtime.SetFunc(models.Meta, func(in onnx.Tensor) (onnx.Tensor, error) {
		s.mu.Lock()
		s.metaSeen = append([]float32(nil), in.Data...)
		s.mu.Unlock()
		return onnx.Tensor{Data: append([]float32(nil), out...), Shape: []int64{1, int64(len(out))}}, nil
	})
}

func (s *State) build() (*pipeline.Pipeline, error) {
	if s.table == nil {
		return nil, errors.New("no disease table configured")
	}
	return pipeline.NewBuilder().
		WithRuntime(s.runtime).
		WithTable(s.table).
		WithGate(!s.gateOff).
		Build()
}
