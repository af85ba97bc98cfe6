package render

import (
	"errors"
	"fmt"
)

var (
	// ErrFontLoad is returned when the configured TrueType font cannot be read.
	ErrFontLoad = errors.New("failed to load font")

	// ErrRenderFailed is returned when the document cannot be produced or written.
	ErrRenderFailed = errors.New("rendering failed")
)

// RenderError records the operation and output path of a rendering failure.
type RenderError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("render: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("render: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// Is reports whether the underlying error matches target.
func (e *RenderError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapRenderError wraps err unless it is nil or already a RenderError.
func WrapRenderError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	return &RenderError{Op: op, Path: path, Err: err}
}
