package ocr

import (
	"errors"
	"fmt"
)

// Common recognition errors
var (
	// ErrOCRFailed is returned when a recognition backend fails to process a crop.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS is configured and no default credentials exist.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidConfiguration is returned when a backend is missing a required setting.
	ErrInvalidConfiguration = errors.New("invalid recognizer configuration")

	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown recognizer backend")

	// ErrEmptyRegion is returned when the requested region does not overlap the image.
	ErrEmptyRegion = errors.New("region does not overlap the image")

	// ErrTesseractNotEnabled is returned when the tesseract backend is requested
	// but was not compiled in. Rebuild with -tags tesseract; this requires
	// libtesseract and its headers (apt-get install libtesseract-dev).
	ErrTesseractNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract or choose another recognizer")

	// ErrRecognizerClosed is returned when Recognize is called after Close.
	ErrRecognizerClosed = errors.New("recognizer is closed")
)

// OCRError wraps errors with additional context about the recognition failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewVisionRecognizer").
	Op string

	// Backend is the recognizer that produced the error.
	Backend string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	prefix := "ocr"
	if e.Backend != "" {
		prefix = "ocr/" + e.Backend
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s failed: %s: %v", prefix, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", prefix, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(backend, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Backend: backend, Err: err, Details: details}
}
