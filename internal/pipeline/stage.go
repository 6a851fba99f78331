package pipeline

import (
	"fmt"
	"strings"
)

// Stage is one step of the cascade after preprocessing.
type Stage string

const (
	// StageGate rejects images that are not rice leaves.
	StageGate Stage = "gate"
	// StageFuse runs both feature extractors and concatenates their outputs.
	StageFuse Stage = "fuse"
	// StageClassify runs the meta classifier on the fused features.
	StageClassify Stage = "classify"
)

// stageOrder fixes the position of each stage in the pipeline list.
var stageOrder = map[Stage]int{StageGate: 0, StageFuse: 1, StageClassify: 2}

// AllStages returns the full pipeline list.
func AllStages() []Stage {
	return []Stage{StageGate, StageFuse, StageClassify}
}

// ParseStage converts a configuration string into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := stageOrder[st]; !ok {
		return "", fmt.Errorf("unknown stage %q (want gate, fuse or classify)", s)
	}
	return st, nil
}

// ParseStages converts a list of names.
func ParseStages(names []string) ([]Stage, error) {
	out := make([]Stage, 0, len(names))
	for _, n := range names {
		st, err := ParseStage(n)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// validateStages requires fuse and classify, forbids duplicates and keeps
// gate < fuse < classify.
func validateStages(stages []Stage) error {
	seen := make(map[Stage]bool, len(stages))
	last := -1
	for _, st := range stages {
		pos, ok := stageOrder[st]
		if !ok {
			return fmt.Errorf("unknown stage %q", st)
		}
		if seen[st] {
			return fmt.Errorf("stage %q listed twice", st)
		}
		if pos < last {
			return fmt.Errorf("stage %q out of order (want gate, fuse, classify)", st)
		}
		seen[st] = true
		last = pos
	}
	if !seen[StageFuse] || !seen[StageClassify] {
		return fmt.Errorf("stages %v must include fuse and classify", stages)
	}
	return nil
}

// StageError reports which stage failed. Err is the error the stage
// returned, unmodified.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
