package rag

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can decide between rejecting
// the input, retrying later, or reporting a hard failure.
type Kind string

const (
	KindInvalidInput   Kind = "invalid_input"
	KindFetchFailure   Kind = "fetch_failure"
	KindEmbedding      Kind = "embedding_failure"
	KindClassification Kind = "classification_failure"
	KindGeneration     Kind = "generation_failure"
	KindTimeout        Kind = "timeout"
)

// PipelineError carries the failing stage and the failure kind alongside the
// underlying cause. InvalidInput is reported before any stage runs; grading
// failures are recovered in place and never escape as PipelineError.
type PipelineError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// stageError wraps err with stage and kind, upgrading the kind to Timeout
// when the cause is a missed deadline or a caller cancelling the request
// context mid-flight.
func stageError(stage string, kind Kind, err error) *PipelineError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &PipelineError{Stage: stage, Kind: kind, Err: err}
}

func invalidInput(format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

// ErrKind reports the failure kind of err, or "" when err is not a pipeline
// error.
func ErrKind(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// errAmbiguousVerdict marks a classifier reply that contained neither a clear
// yes nor a clear no. Callers fall back to the lenient default (relevant).
var errAmbiguousVerdict = errors.New("ambiguous relevance verdict")
