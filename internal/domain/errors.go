package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed input (negative k, empty vector, no basis to rank).
	ErrValidation = errors.New("validation failed")
	// ErrDimensionMismatch signals a vector length inconsistent with the pinned collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInsufficientData signals a corpus smaller than the requested operation needs.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrEmbedderUnavailable signals that the embedding provider cannot be reached.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	// ErrNotFound signals a missing resource on surfaces that must report it explicitly.
	ErrNotFound = errors.New("not found")
)

// Pipeline stage names used to tag upstream failures.
const (
	StageEmbed     = "embed"
	StageRetrieval = "retrieval"
	StageScoring   = "scoring"
	StageStorage   = "storage"
	StageCluster   = "cluster"
)

// StageError wraps a collaborator failure with the pipeline stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError tags an upstream error with the failing stage.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
