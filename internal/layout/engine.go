package layout

import (
	"errors"
	"fmt"
	"image"
)

// ErrOpenCVNotEnabled is returned when the OpenCV engine is requested but
// was not compiled in. Rebuild with -tags gocv.
var ErrOpenCVNotEnabled = errors.New("OpenCV support not enabled; rebuild with -tags gocv")

// Detection engines accepted by NewDetector.
const (
	EngineNative = "native"
	EngineOpenCV = "opencv"
)

// Detector is implemented by Extractor and CVExtractor.
type Detector interface {
	Extract(img image.Image) *Layout
}

// NewDetector builds the extractor for engine. The OpenCV engine needs the
// "gocv" build tag.
func NewDetector(engine string, opts Options) (Detector, error) {
	switch engine {
	case EngineNative, "":
		e, err := NewExtractor(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EngineOpenCV:
		e, err := NewCVExtractor(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: engine %q", ErrInvalidOption, engine)
	}
}
