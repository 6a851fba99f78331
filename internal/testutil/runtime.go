package testutil

import (
	"testing"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/stretchr/testify/require"
)

// ThreeClassRecords is a small table used across tests.
func ThreeClassRecords() []disease.Record {
	return []disease.Record{
		{Name: "Brown Spot", Severity: disease.SeverityMedium, Description: "brown lesions", Treatment: "mancozeb"},
		{Name: "Leaf Blast", Severity: disease.SeverityHigh, Description: "grey lesions", Treatment: "tricyclazole"},
		{Name: "Healthy", Severity: disease.SeverityNone, Description: "healthy leaf", Treatment: "none"},
	}
}

// ThreeClassTable builds a table from ThreeClassRecords.
func ThreeClassTable(t testing.TB) *disease.Table {
	t.Helper()
	table, err := disease.NewTable(ThreeClassRecords())
	require.NoError(t, err)
	return table
}

// ScenarioRuntime returns canned outputs: the gate scores gate, the
// extractors emit 3 and 2 features and the meta classifier favours class 1
// at 0.85.
func ScenarioRuntime(gate float32) *engine.StaticRuntime {
	return engine.NewStaticRuntime().
		SetOutput(models.LeafGate, gate).
		SetOutput(models.ExtractorA, 0.1, 0.2, 0.7).
		SetOutput(models.ExtractorB, 0.4, 0.4).
		SetOutput(models.Meta, 0.05, 0.85, 0.10)
}

// NewPipeline builds a cascade over rt and the three-class table.
func NewPipeline(t testing.TB, rt engine.Runtime, opts ...func(*pipeline.Builder) *pipeline.Builder) *pipeline.Pipeline {
	t.Helper()
	b := pipeline.NewBuilder().WithRuntime(rt).WithTable(ThreeClassTable(t))
	for _, opt := range opts {
		b = opt(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	return p
}
