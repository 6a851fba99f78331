package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/oryza/internal/common"
	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/MeKo-Tech/oryza/internal/utils"
)

// Run classifies one image. On a stage failure it returns the failed verdict
// together with a *StageError so callers can still render a response.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (*Verdict, error) {
	res, err := p.RunTraced(ctx, img)
	if res == nil {
		return nil, err
	}
	return &res.Verdict, err
}

// RunBytes decodes data and classifies it. Decode failures are returned as
// *utils.ImageProcessingError without touching any model.
func (p *Pipeline) RunBytes(ctx context.Context, data []byte) (*Verdict, error) {
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, img)
}

// RunTraced is Run plus a request id and per-stage timings.
func (p *Pipeline) RunTraced(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, &utils.ImageProcessingError{Operation: "preprocess", Err: errors.New("nil image")}
	}
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	res := &Result{RequestID: uuid.NewString()}
	log := slog.With("request_id", res.RequestID)

	var input onnx.Tensor
	release := func() {}
	_ = res.Timings.Track("preprocess", func() error {
		if p.cfg.Preprocess.Pooled {
			input, release = utils.PreprocessPooled(img, p.cfg.Preprocess)
		} else {
			input = utils.Preprocess(img, p.cfg.Preprocess)
		}
		return nil
	})
	defer func() {
		// A timed out session may still be reading the buffer.
		if ctx.Err() == nil {
			release()
		}
	}()

	v, err := p.cascade(ctx, input, &res.Timings)
	res.Verdict = v
	if err != nil {
		log.Warn("cascade failed", "stage", v.FailedStage, "error", err)
		return res, err
	}
	log.Debug("cascade finished",
		"kind", v.Kind,
		"disease", v.Record.Name,
		"confidence", v.Confidence,
		"total", res.Timings.Total())
	return res, nil
}

// cascade walks the configured stages on a preprocessed tensor.
func (p *Pipeline) cascade(ctx context.Context, input onnx.Tensor, timings *common.Timings) (Verdict, error) {
	var (
		gateScore *float64
		features  FeatureVector
		verdict   Verdict
	)
	for _, st := range p.stages {
		var err error
		switch st {
		case StageGate:
			var score float32
			err = timings.Track(string(st), func() error {
				var gerr error
				score, gerr = p.gate(ctx, input)
				return gerr
			})
			if err == nil {
				if s := float64(score); !math.IsNaN(s) && !math.IsInf(s, 0) {
					gateScore = &s
				}
				// NaN fails the comparison and is treated as not a leaf.
				if !(score >= p.cfg.LeafThreshold) {
					nl := notLeafVerdict()
					nl.GateScore = gateScore
					return nl, nil
				}
			}
		case StageFuse:
			err = timings.Track(string(st), func() error {
				var ferr error
				features, ferr = p.fuse(ctx, input)
				return ferr
			})
		case StageClassify:
			err = timings.Track(string(st), func() error {
				var cerr error
				verdict, cerr = p.classify(ctx, features)
				return cerr
			})
		}
		if err != nil {
			return failedVerdict(st, err, gateScore), &StageError{Stage: st, Err: err}
		}
	}
	verdict.GateScore = gateScore
	return verdict, nil
}

// gate returns the leaf score of the image.
func (p *Pipeline) gate(ctx context.Context, input onnx.Tensor) (float32, error) {
	out, err := p.runtime.Infer(ctx, p.cfg.Models.Gate, input)
	if err != nil {
		return 0, err
	}
	score, err := out.Scalar()
	if err != nil {
		return 0, &engine.ModelError{Model: p.cfg.Models.Gate, Kind: engine.KindShapeMismatch, Err: err}
	}
	return score, nil
}

// fuse runs both extractors concurrently and concatenates A then B.
func (p *Pipeline) fuse(ctx context.Context, input onnx.Tensor) (FeatureVector, error) {
	ids := [2]models.ID{p.cfg.Models.ExtractorA, p.cfg.Models.ExtractorB}
	var (
		outs [2]onnx.Tensor
		errs [2]error
		wg   sync.WaitGroup
	)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = p.runtime.Infer(ctx, id, input)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return FuseFeatures(outs[0].Flatten(), outs[1].Flatten()), nil
}

// FuseFeatures concatenates two flattened feature vectors, a first.
func FuseFeatures(a, b []float32) FeatureVector {
	out := make(FeatureVector, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// classify runs the meta model on the fused vector and looks up the winner.
func (p *Pipeline) classify(ctx context.Context, features FeatureVector) (Verdict, error) {
	in, err := onnx.NewTensor(features, 1, int64(len(features)))
	if err != nil {
		return Verdict{}, err
	}
	out, err := p.runtime.Infer(ctx, p.cfg.Models.Meta, in)
	if err != nil {
		return Verdict{}, err
	}
	probs := ClassProbabilities(out.Flatten())
	if len(probs) != p.table.Len() {
		return Verdict{}, &engine.ShapeMismatchError{
			What: "meta output width vs disease table size",
			Want: int64(p.table.Len()),
			Got:  int64(len(probs)),
		}
	}

	for i, v := range probs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Verdict{}, &engine.ModelError{
				Model: p.cfg.Models.Meta,
				Kind:  engine.KindExecution,
				Err:   fmt.Errorf("non-finite score %v for class %d", v, i),
			}
		}
	}

	idx := ArgMax(probs)
	rec, err := p.table.Lookup(idx)
	if err != nil {
		return Verdict{}, fmt.Errorf("lookup class %d: %w", idx, err)
	}
	return Verdict{
		Kind:          KindDiagnosis,
		Record:        rec,
		Confidence:    ConfidencePercent(probs[idx]),
		ClassIndex:    idx,
		Alternatives:  p.alternatives(probs, idx),
		Probabilities: probs,
	}, nil
}

// ArgMax returns the index of the largest score. Ties go to the lowest
// index; NaN never wins, and a slice of only NaN yields 0. It returns -1
// for an empty slice. The cascade rejects non-finite meta scores before
// calling it.
func ArgMax(scores []float32) int {
	best := -1
	for i, s := range scores {
		if math.IsNaN(float64(s)) {
			continue
		}
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	if best < 0 && len(scores) > 0 {
		return 0
	}
	return best
}

// ConfidencePercent converts a raw score to a percentage rounded to two decimals.
func ConfidencePercent(score float32) float64 {
	return math.Round(float64(score)*100*100) / 100
}

// alternatives returns up to TopK runner-up classes in descending score order.
func (p *Pipeline) alternatives(probs ClassProbabilities, winner int) []Alternative {
	if p.cfg.TopK <= 0 {
		return nil
	}
	idx := make([]int, 0, len(probs)-1)
	for i := range probs {
		if i != winner {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	if len(idx) > p.cfg.TopK {
		idx = idx[:p.cfg.TopK]
	}

	out := make([]Alternative, 0, len(idx))
	for _, i := range idx {
		rec, err := p.table.Lookup(i)
		if err != nil {
			continue
		}
		out = append(out, Alternative{Disease: rec.Name, ClassIndex: i, Confidence: ConfidencePercent(probs[i])})
	}
	return out
}

func notLeafVerdict() Verdict {
	return Verdict{Kind: KindNotLeaf, Record: disease.NotLeaf, Confidence: 0, ClassIndex: -1}
}

func failedVerdict(st Stage, err error, gateScore *float64) Verdict {
	return Verdict{
		Kind:        KindFailed,
		ClassIndex:  -1,
		GateScore:   gateScore,
		FailedStage: st,
		Error:       err.Error(),
	}
}
