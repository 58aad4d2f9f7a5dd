package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a pipeline phase in failures, logs and metrics.
type Stage string

const (
	StagePrecondition Stage = "precondition"
	StageFetch        Stage = "fetch"
	StageTranscribe   Stage = "transcribe"
	StageSynthesize   Stage = "synthesize"
	StageUnknown      Stage = "unknown"
)

// Failure kinds. A StageError unwraps to exactly one of them.
var (
	ErrPrecondition = errors.New("precondition failed")
	ErrStageFailed  = errors.New("stage failed")
	ErrUnexpected   = errors.New("unexpected fault")
)

var (
	ErrMissingCredential = errors.New("language model api key is not configured")
	ErrEmptyVideoURL     = errors.New("video url is required")
)

// StageError is a fatal pipeline failure tagged with the stage it happened in.
type StageError struct {
	Stage   Stage
	Kind    error
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func preconditionError(message string, err error) *StageError {
	return &StageError{Stage: StagePrecondition, Kind: ErrPrecondition, Message: message, Err: err}
}

func stageError(stage Stage, message string, err error) *StageError {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return &StageError{Stage: stage, Kind: ErrStageFailed, Message: message, Err: err}
}

func unexpectedError(stage Stage, recovered any) *StageError {
	if stage == "" {
		stage = StageUnknown
	}
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &StageError{
		Stage:   stage,
		Kind:    ErrUnexpected,
		Message: fmt.Sprintf("unexpected fault: %v", err),
		Err:     err,
	}
}
