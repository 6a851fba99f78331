package pipeline

import (
	"github.com/MeKo-Tech/oryza/internal/common"
	"github.com/MeKo-Tech/oryza/internal/disease"
)

// FeatureVector is extractor A's flattened output followed by extractor B's.
type FeatureVector []float32

// ClassProbabilities holds one raw meta-classifier score per table entry.
type ClassProbabilities []float32

// VerdictKind distinguishes the three terminal states of a run.
type VerdictKind string

const (
	KindDiagnosis VerdictKind = "diagnosis"
	KindNotLeaf   VerdictKind = "not_leaf"
	KindFailed    VerdictKind = "failed"
)

// HealthStatus is the coarse outcome shown to users.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDiseased HealthStatus = "diseased"
	StatusNotLeaf  HealthStatus = "not_leaf"
	StatusUnknown  HealthStatus = "unknown"
)

// Alternative is a runner-up class.
type Alternative struct {
	Disease    string  `json:"disease"`
	ClassIndex int     `json:"class_index"`
	Confidence float64 `json:"confidence"`
}

// Verdict is the outcome of one run. Identical inputs and models yield
// identical verdicts.
type Verdict struct {
	Kind          VerdictKind        `json:"kind"`
	Record        disease.Record     `json:"record"`
	Confidence    float64            `json:"confidence"`
	ClassIndex    int                `json:"class_index"`
	GateScore     *float64           `json:"gate_score,omitempty"`
	Alternatives  []Alternative      `json:"alternatives,omitempty"`
	Probabilities ClassProbabilities `json:"probabilities,omitempty"`
	FailedStage   Stage              `json:"failed_stage,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// HealthStatus derives the user-facing status from the verdict.
func (v Verdict) HealthStatus() HealthStatus {
	switch v.Kind {
	case KindNotLeaf:
		return StatusNotLeaf
	case KindDiagnosis:
		if v.Record.Healthy() {
			return StatusHealthy
		}
		return StatusDiseased
	default:
		return StatusUnknown
	}
}

// Result wraps a verdict with per-request bookkeeping.
type Result struct {
	RequestID string         `json:"request_id"`
	Verdict   Verdict        `json:"verdict"`
	Timings   common.Timings `json:"timings"`
}
