package support

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/MeKo-Tech/oryza/internal/testutil"
	"github.com/cucumber/godog"
)

func (s *State) registerCascadeSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a disease table with classes "([^"]*)"$`, s.aDiseaseTableWithClasses)
	sc.Step(`^the leaf gate scores ([0-9.]+)$`, s.theLeafGateScores)
	sc.Step(`^the leaf gate is disabled$`, s.theLeafGateIsDisabled)
	sc.Step(`^extractor A emits "([^"]*)"$`, s.extractorEmits(models.ExtractorA))
	sc.Step(`^extractor B emits "([^"]*)"$`, s.extractorEmits(models.ExtractorB))
	sc.Step(`^the meta classifier emits "([^"]*)"$`, s.theMetaClassifierEmits)
	sc.Step(`^the "([^"]*)" model fails with "([^"]*)"$`, s.theModelFailsWith)

	sc.Step(`^I classify a leaf image$`, func() error { return s.iClassifyALeafImageTimes(1) })
	sc.Step(`^I classify a leaf image (\d+) times$`, s.iClassifyALeafImageTimes)

	sc.Step(`^the verdict is a diagnosis of "([^"]*)" with confidence ([0-9.]+)$`, s.theVerdictIsADiagnosisOf)
	sc.Step(`^the verdict is not a leaf$`, s.theVerdictIsNotALeaf)
	sc.Step(`^the verdict kind is "([^"]*)"$`, s.theVerdictKindIs)
	sc.Step(`^the meta classifier received "([^"]*)"$`, s.theMetaClassifierReceived)
	sc.Step(`^the alternatives are "([^"]*)"$`, s.theAlternativesAre)
	sc.Step(`^the health status is "([^"]*)"$`, s.theHealthStatusIs)
	sc.Step(`^the "([^"]*)" model was called (\d+) times$`, s.theModelWasCalled)
	sc.Step(`^the cascade fails in stage "([^"]*)"$`, s.theCascadeFailsInStage)
	sc.Step(`^all verdicts are identical$`, s.allVerdictsAreIdentical)
}

func (s *State) aDiseaseTableWithClasses(list string) error {
	names := parseNames(list)
	records := make([]disease.Record, len(names))
	for i, name := range names {
		sev := disease.SeverityMedium
		if strings.EqualFold(name, "healthy") {
			sev = disease.SeverityNone
		}
		records[i] = disease.Record{Name: name, Severity: sev, Description: name, Treatment: "consult an agronomist"}
	}
	table, err := disease.NewTable(records)
	if err != nil {
		return err
	}
	s.table = table
	return nil
}

func (s *State) theLeafGateScores(score float64) error {
	s.runtime.SetOutput(models.LeafGate, float32(score))
	return nil
}

func (s *State) theLeafGateIsDisabled() error {
	s.gateOff = true
	return nil
}

func (s *State) extractorEmits(id models.ID) func(string) error {
	return func(list string) error {
		values, err := parseFloats(list)
		if err != nil {
			return err
		}
		s.runtime.SetOutput(id, values...)
		return nil
	}
}

func (s *State) theMetaClassifierEmits(list string) error {
	values, err := parseFloats(list)
	if err != nil {
		return err
	}
	s.setMeta(values)
	return nil
}

func (s *State) theModelFailsWith(id, msg string) error {
	mid, err := models.ParseID(id)
	if err != nil {
		return err
	}
	s.runtime.SetError(mid, errors.New(msg))
	return nil
}

func (s *State) iClassifyALeafImageTimes(n int) error {
	p, err := s.build()
	if err != nil {
		return err
	}
	img := testutil.LeafImage(48, 32)
	for range n {
		v, err := p.Run(context.Background(), img)
		s.verdicts = append(s.verdicts, v)
		s.lastErr = err
	}
	return nil
}

func (s *State) last() (*pipeline.Verdict, error) {
	if len(s.verdicts) == 0 {
		return nil, errors.New("nothing was classified")
	}
	return s.verdicts[len(s.verdicts)-1], nil
}

func (s *State) theVerdictIsADiagnosisOf(name string, confidence float64) error {
	v, err := s.last()
	if err != nil {
		return err
	}
	if s.lastErr != nil {
		return fmt.Errorf("cascade failed: %w", s.lastErr)
	}
	if v.Kind != pipeline.KindDiagnosis || v.Record.Name != name {
		return fmt.Errorf("expected diagnosis %q, got %s %q", name, v.Kind, v.Record.Name)
	}
	if math.Abs(v.Confidence-confidence) > 1e-9 {
		return fmt.Errorf("expected confidence %.2f, got %.2f", confidence, v.Confidence)
	}
	return nil
}

func (s *State) theVerdictIsNotALeaf() error {
	v, err := s.last()
	if err != nil {
		return err
	}
	if v.Kind != pipeline.KindNotLeaf || v.Record.Name != disease.NotLeaf.Name || v.Confidence != 0 {
		return fmt.Errorf("expected not-leaf verdict, got %s %q %.2f", v.Kind, v.Record.Name, v.Confidence)
	}
	return nil
}

func (s *State) theVerdictKindIs(kind string) error {
	v, err := s.last()
	if err != nil {
		return err
	}
	if string(v.Kind) != kind {
		return fmt.Errorf("expected %s, got %s", kind, v.Kind)
	}
	return nil
}

func (s *State) theMetaClassifierReceived(list string) error {
	want, err := parseFloats(list)
	if err != nil {
		return err
	}
	s.mu.Lock()
	got := s.metaSeen
	s.mu.Unlock()
	if !reflect.DeepEqual(want, got) {
		return fmt.Errorf("meta input %v, want %v", got, want)
	}
	return nil
}

func (s *State) theAlternativesAre(list string) error {
	v, err := s.last()
	if err != nil {
		return err
	}
	want := parseNames(list)
	got := make([]string, len(v.Alternatives))
	for i, a := range v.Alternatives {
		got[i] = a.Disease
	}
	if !reflect.DeepEqual(want, got) {
		return fmt.Errorf("alternatives %v, want %v", got, want)
	}
	return nil
}

func (s *State) theHealthStatusIs(status string) error {
	v, err := s.last()
	if err != nil {
		return err
	}
	if string(v.HealthStatus()) != status {
		return fmt.Errorf("health status %s, want %s", v.HealthStatus(), status)
	}
	return nil
}

func (s *State) theModelWasCalled(id string, n int) error {
	mid, err := models.ParseID(id)
	if err != nil {
		return err
	}
	if got := s.runtime.Calls(mid); got != n {
		return fmt.Errorf("%s called %d times, want %d", id, got, n)
	}
	return nil
}

func (s *State) theCascadeFailsInStage(stage string) error {
	v, err := s.last()
	if err != nil {
		return err
	}
	var se *pipeline.StageError
	if !errors.As(s.lastErr, &se) {
		return fmt.Errorf("expected a stage error, got %v", s.lastErr)
	}
	if string(se.Stage) != stage || v.Kind != pipeline.KindFailed || string(v.FailedStage) != stage {
		return fmt.Errorf("failed in %s (verdict %s/%s), want %s", se.Stage, v.Kind, v.FailedStage, stage)
	}
	return nil
}

func (s *State) allVerdictsAreIdentical() error {
	for i := 1; i < len(s.verdicts); i++ {
		if !reflect.DeepEqual(s.verdicts[0], s.verdicts[i]) {
			return fmt.Errorf("verdict %d differs: %+v vs %+v", i, s.verdicts[i], s.verdicts[0])
		}
	}
	return nil
}
