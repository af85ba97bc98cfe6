package layout

import (
	"image"

	"github.com/rs/zerolog"

	"pagerecon/internal/logger"
)

// Extractor finds text regions on page images. It holds no per-page state
// and is safe for concurrent use.
type Extractor struct {
	opts Options
	log  zerolog.Logger
}

// NewExtractor returns an extractor using opts.
func NewExtractor(opts Options) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		opts: opts,
		log:  logger.WithComponent("layout"),
	}, nil
}

// Extract runs region detection with the default options.
func Extract(img image.Image) *Layout {
	e := &Extractor{opts: DefaultOptions(), log: logger.WithComponent("layout")}
	return e.Extract(img)
}

// Extract detects text regions on img. The image is not modified. Every
// returned region lies inside img.Bounds() and is strictly larger than the
// configured minimum size. An empty or blank image yields no regions.
func (e *Extractor) Extract(img image.Image) *Layout {
	bounds := img.Bounds()
	l := &Layout{Bounds: bounds}
	if bounds.Empty() {
		return l
	}

	gray := Grayscale(img)
	l.Threshold = OtsuThreshold(Histogram(gray))
	ink := invertedMask(gray, l.Threshold)
	grown := dilate(ink, e.opts.KernelWidth, e.opts.KernelHeight, e.opts.Iterations)

	blobs := outerBlobs(grown, ink)
	for _, b := range blobs {
		rect := b.outer
		if e.opts.Bounds == BoundsTight {
			rect = b.ink
		}
		if rect.Dx() <= e.opts.MinWidth || rect.Dy() <= e.opts.MinHeight {
			continue
		}
		l.Regions = append(l.Regions, regionFromRect(rect.Add(bounds.Min)))
	}

	if e.opts.Order == OrderTopLeft {
		SortTopLeft(l.Regions)
	}
	if e.opts.Overlay {
		l.Overlay = DrawOverlay(gray, l.Regions, bounds.Min)
	}

	e.log.Debug().
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("threshold", int(l.Threshold)).
		Int("blobs", len(blobs)).
		Int("regions", len(l.Regions)).
		Msg("Layout extracted")

	return l
}
