//go:build !gocv

package layout

import "image"

// CVExtractor is a stub used when the "gocv" build tag is not set.
type CVExtractor struct{}

// NewCVExtractor returns ErrOpenCVNotEnabled.
func NewCVExtractor(opts Options) (*CVExtractor, error) {
	return nil, ErrOpenCVNotEnabled
}

// Extract returns an empty layout.
func (e *CVExtractor) Extract(img image.Image) *Layout {
	return &Layout{Bounds: img.Bounds()}
}
