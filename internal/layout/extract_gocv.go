//go:build gocv

package layout

import (
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"pagerecon/internal/logger"
)

// CVExtractor is an OpenCV-backed Extractor. It follows the same contract as
// Extractor and is only built with the "gocv" tag:
//
//	go build -tags gocv
//
// In BoundsTight mode the ink box is measured over the whole dilated
// rectangle, so ink of an overlapping neighbour can widen it.
type CVExtractor struct {
	opts Options
	log  zerolog.Logger
}

// NewCVExtractor returns an OpenCV extractor using opts.
func NewCVExtractor(opts Options) (*CVExtractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &CVExtractor{opts: opts, log: logger.WithComponent("layout-cv")}, nil
}

// Extract detects text regions on img.
func (e *CVExtractor) Extract(img image.Image) *Layout {
	bounds := img.Bounds()
	l := &Layout{Bounds: bounds}
	if bounds.Empty() {
		return l
	}

	gray := Grayscale(img)
	src, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to convert page to OpenCV matrix")
		return l
	}
	defer src.Close()

	thresh := gocv.NewMat()
	defer thresh.Close()
	t := gocv.Threshold(src, &thresh, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	l.Threshold = uint8(t)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(e.opts.KernelWidth, e.opts.KernelHeight))
	defer kernel.Close()

	dilated := thresh.Clone()
	defer dilated.Close()
	for i := 0; i < e.opts.Iterations; i++ {
		gocv.Dilate(dilated, &dilated, kernel)
	}

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		if e.opts.Bounds == BoundsTight {
			rect = inkBounds(thresh, rect)
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
		Int("threshold", int(l.Threshold)).
		Int("contours", contours.Size()).
		Int("regions", len(l.Regions)).
		Msg("Layout extracted")
	return l
}

// inkBounds shrinks rect to the set pixels of mask inside it.
func inkBounds(mask gocv.Mat, rect image.Rectangle) image.Rectangle {
	roi := mask.Region(rect)
	defer roi.Close()

	points := gocv.NewMat()
	defer points.Close()
	gocv.FindNonZero(roi, &points)

	var ink image.Rectangle
	for i := 0; i < points.Rows(); i++ {
		p := points.GetVeciAt(i, 0)
		x, y := int(p[0]), int(p[1])
		ink = ink.Union(image.Rect(x, y, x+1, y+1))
	}
	if ink.Empty() {
		return rect
	}
	return ink.Add(rect.Min)
}
