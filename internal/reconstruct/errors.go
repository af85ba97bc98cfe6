package reconstruct

import (
	"errors"
	"fmt"
)

// ErrInvalidPipeline is returned by New when a stage is missing or an
// option is out of range.
var ErrInvalidPipeline = errors.New("invalid pipeline configuration")

// PipelineError wraps errors with the stage and input they occurred on.
type PipelineError struct {
	// Op is the stage that failed (e.g., "load", "extract", "render").
	Op string

	// Input is the page being processed, if known.
	Input string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("reconstruct %s: %s: %v", e.Input, e.Op, e.Err)
	}
	return fmt.Sprintf("reconstruct: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapPipelineError wraps an error as a PipelineError if it isn't already one.
func WrapPipelineError(op, input string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Op: op, Input: input, Err: err}
}
