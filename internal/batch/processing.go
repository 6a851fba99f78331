package batch

import (
	"github.com/MeKo-Tech/oryza/internal/pipeline"
)

// Row is the flat, per-file record every output format is rendered from.
type Row struct {
	File         string                 `json:"file"`
	Status       string                 `json:"status"`
	Disease      string                 `json:"disease,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Treatment    string                 `json:"treatment,omitempty"`
	Confidence   float64                `json:"confidence"`
	ClassIndex   int                    `json:"class_index"`
	HealthStatus string                 `json:"health_status"`
	Alternatives []pipeline.Alternative `json:"other_possibilities,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Error        string                 `json:"error,omitempty"`
	DurationMs   float64                `json:"duration_ms"`
}

// Rows converts batch results into output rows, preserving order.
func Rows(results []pipeline.FileResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = toRow(r)
	}
	return rows
}

func toRow(r pipeline.FileResult) Row {
	row := Row{
		File:         r.Path,
		ClassIndex:   -1,
		HealthStatus: string(pipeline.StatusUnknown),
		DurationMs:   float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Result != nil {
		v := r.Result.Verdict
		row.RequestID = r.Result.RequestID
		row.Status = string(v.Kind)
		row.HealthStatus = string(v.HealthStatus())
		row.ClassIndex = v.ClassIndex
		row.Confidence = v.Confidence
		if v.Kind != pipeline.KindFailed {
			row.Disease = v.Record.Name
			row.Severity = string(v.Record.Severity)
			row.Treatment = v.Record.Treatment
			row.Alternatives = v.Alternatives
		}
	}
	if r.Err != nil {
		row.Status = string(pipeline.KindFailed)
		row.Error = r.Err.Error()
	}
	return row
}
