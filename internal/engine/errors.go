package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/oryza/internal/models"
)

// ErrorKind classifies a failed inference call.
type ErrorKind string

const (
	KindNotLoaded     ErrorKind = "not_loaded"
	KindShapeMismatch ErrorKind = "shape_mismatch"
	KindExecution     ErrorKind = "execution"
	KindTimeout       ErrorKind = "timeout"
)

// ModelError is returned by Runtime.Infer.
type ModelError struct {
	Model models.ID
	Kind  ErrorKind
	Err   error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s: %s", e.Model, e.Kind)
	}
	return fmt.Sprintf("model %s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries a ModelError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Kind == kind
}

func notLoaded(id models.ID) error {
	return &ModelError{Model: id, Kind: KindNotLoaded, Err: errors.New("model is not loaded")}
}

func execFailed(id models.ID, err error) error {
	return &ModelError{Model: id, Kind: KindExecution, Err: err}
}

func timedOut(ctx context.Context, id models.ID) error {
	return &ModelError{Model: id, Kind: KindTimeout, Err: ctx.Err()}
}

func shapeRejected(id models.ID, declared, got []int64) error {
	return &ModelError{
		Model: id,
		Kind:  KindShapeMismatch,
		Err:   fmt.Errorf("input shape %v does not match declared %v", got, declared),
	}
}

// ModelLoadError means a required model artifact is missing or invalid.
// The process must not serve traffic when one is returned at startup.
type ModelLoadError struct {
	Model models.ID
	Path  string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s from %s: %v", e.Model, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError reports that two widths that must agree do not.
// It signals a configuration bug: the models were not trained together.
type ShapeMismatchError struct {
	What string
	Want int64
	Got  int64
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %s: want %d, got %d", e.What, e.Want, e.Got)
}
