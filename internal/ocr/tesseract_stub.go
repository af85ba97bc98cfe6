//go:build !tesseract

package ocr

import (
	"context"
	"image"
)

// TesseractRecognizer is a stub used when the "tesseract" build tag is not set.
type TesseractRecognizer struct{}

// NewTesseractRecognizer returns ErrTesseractNotEnabled.
func NewTesseractRecognizer(cfg Config) (*TesseractRecognizer, error) {
	return nil, WrapOCRError(BackendTesseract, "NewTesseractRecognizer", ErrTesseractNotEnabled, "")
}

// Recognize returns ErrTesseractNotEnabled.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	return "", ErrTesseractNotEnabled
}

// Close is a no-op. It is safe to call on a nil recognizer.
func (t *TesseractRecognizer) Close() error {
	return nil
}
