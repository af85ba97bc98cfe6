// Package ocr recognizes the text inside one region of a page image.
//
// Every backend implements Recognizer. A recognizer is constructed once,
// shared by all regions and pages of a run, and released with Close. All
// implementations are safe for concurrent use.
//
// Backends:
//   - tesseract: local Tesseract through gosseract. Needs the "tesseract"
//     build tag and libtesseract; without the tag the constructor returns
//     ErrTesseractNotEnabled.
//   - vision: Google Cloud Vision document text detection.
//   - documentai: a Google Document AI OCR processor.
//   - openai: an OpenAI vision-capable chat model.
//
// Google backends read credentials from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to Application
// Default Credentials.
//
// Whatever the backend returns, lines are joined with single spaces so one
// region always yields one line of text.
package ocr

import (
	"context"
	"fmt"
	"image"
	"time"
)

// Backend names accepted by New.
const (
	BackendTesseract  = "tesseract"
	BackendVision     = "vision"
	BackendDocumentAI = "documentai"
	BackendOpenAI     = "openai"
)

// Recognizer maps a region of an image to the text it contains.
type Recognizer interface {
	// Recognize returns the text inside region of img, lines joined by a
	// single space. The region is clipped to the image bounds.
	Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error)

	// Close releases the backend's resources.
	Close() error
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img image.Image, region image.Rectangle) (string, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	return f(ctx, img, region)
}

// Close is a no-op.
func (f RecognizerFunc) Close() error {
	return nil
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of the Backend* constants.
	Backend string

	// Languages are Tesseract language codes (e.g. "eng", "deu") or, for
	// cloud backends, BCP-47 language hints.
	Languages []string

	// PoolSize is the number of Tesseract engines kept for concurrent use.
	PoolSize int

	// Google Cloud settings, shared by vision and documentai.
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string

	// OpenAI settings.
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Timeout bounds a single backend call. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration
}

// DefaultConfig returns a Tesseract configuration for English text.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendTesseract,
		Languages: []string{"eng"},
		PoolSize:  1,
		Location:  "us",
		Timeout:   60 * time.Second,
	}
}

// New builds the recognizer named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Recognizer, error) {
	var (
		r   Recognizer
		err error
	)
	switch cfg.Backend {
	case BackendTesseract, "":
		var t *TesseractRecognizer
		if t, err = NewTesseractRecognizer(cfg); err == nil {
			r = t
		}
	case BackendVision:
		var v *VisionRecognizer
		if v, err = NewVisionRecognizer(ctx, cfg); err == nil {
			r = v
		}
	case BackendDocumentAI:
		var d *DocumentAIRecognizer
		if d, err = NewDocumentAIRecognizer(ctx, cfg); err == nil {
			r = d
		}
	case BackendOpenAI:
		var o *OpenAIRecognizer
		if o, err = NewOpenAIRecognizer(cfg); err == nil {
			r = o
		}
	default:
		err = WrapOCRError(cfg.Backend, "New", ErrUnknownBackend, fmt.Sprintf("backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// withTimeout derives a context bounded by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
