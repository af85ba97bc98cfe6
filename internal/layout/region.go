// Package layout detects candidate text blocks on a scanned page image.
//
// The detector binarizes the page with an Otsu threshold, dilates the
// foreground with a wide, short rectangle so that characters, words and
// neighbouring lines merge into blobs, and reports the bounding rectangle of
// every blob's outer contour that is larger than a configurable minimum size.
//
// All size parameters are expressed in pixels of the image handed to the
// extractor and therefore depend on the scan resolution.
package layout

import (
	"errors"
	"fmt"
	"image"
	"sort"
)

// Region is an axis-aligned rectangle, in source image pixels, believed to
// contain a block of text. Text is filled in once recognition has run.
type Region struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Text   string `json:"text"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

func regionFromRect(rect image.Rectangle) Region {
	return Region{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
}

// Layout is the set of regions detected on one page.
type Layout struct {
	// Bounds of the image the regions were detected on.
	Bounds image.Rectangle

	// Regions in emission order (see ReadingOrder).
	Regions []Region

	// Threshold is the Otsu threshold picked for the page; pixels at or below
	// it were treated as text.
	Threshold uint8

	// Overlay is the grayscale page with every region outlined. Only set when
	// Options.Overlay is true; it is not used by later stages.
	Overlay *image.RGBA
}

// Len returns the number of regions.
func (l *Layout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Regions)
}

// BoundsMode selects which rectangle is reported for a detected blob.
type BoundsMode string

const (
	// BoundsTight reports the box around the undilated foreground pixels of
	// the blob. Dilation is only used to group pixels.
	BoundsTight BoundsMode = "tight"

	// BoundsDilated reports the box around the dilated blob, which is larger
	// than the ink by the kernel growth on every side.
	BoundsDilated BoundsMode = "dilated"
)

// ReadingOrder selects the order regions are emitted in.
type ReadingOrder string

const (
	// OrderDetection keeps the order blobs were discovered in: raster order of
	// each blob's top-most, then left-most pixel. This is not a reading order.
	OrderDetection ReadingOrder = "detection"

	// OrderTopLeft sorts regions by their top edge, then by their left edge.
	OrderTopLeft ReadingOrder = "top-left"
)

// Defaults tuned for a page scanned at roughly 100-150 dpi.
const (
	DefaultMinWidth     = 30
	DefaultMinHeight    = 10
	DefaultKernelWidth  = 15
	DefaultKernelHeight = 5
	DefaultIterations   = 2
)

var (
	// ErrInvalidKernel is returned for a structuring element with a non-positive side.
	ErrInvalidKernel = errors.New("dilation kernel must be at least 1x1")

	// ErrInvalidOption is returned for any other out-of-range option.
	ErrInvalidOption = errors.New("invalid layout option")
)

// Options configures region extraction.
type Options struct {
	// Regions must be strictly wider than MinWidth and strictly taller than
	// MinHeight to be kept. The check applies to the reported box, so under
	// BoundsTight it sees the ink and under BoundsDilated the dilated blob.
	MinWidth  int
	MinHeight int

	// KernelWidth x KernelHeight is the rectangular structuring element used
	// for dilation, applied Iterations times.
	KernelWidth  int
	KernelHeight int
	Iterations   int

	Bounds BoundsMode
	Order  ReadingOrder

	// Overlay requests a diagnostic image with the regions drawn on it.
	Overlay bool
}

// DefaultOptions returns the stock extraction settings.
func DefaultOptions() Options {
	return Options{
		MinWidth:     DefaultMinWidth,
		MinHeight:    DefaultMinHeight,
		KernelWidth:  DefaultKernelWidth,
		KernelHeight: DefaultKernelHeight,
		Iterations:   DefaultIterations,
		Bounds:       BoundsTight,
		Order:        OrderDetection,
	}
}

// Validate checks the options for values the extractor cannot work with.
func (o Options) Validate() error {
	if o.KernelWidth < 1 || o.KernelHeight < 1 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidKernel, o.KernelWidth, o.KernelHeight)
	}
	if o.Iterations < 0 {
		return fmt.Errorf("%w: iterations %d", ErrInvalidOption, o.Iterations)
	}
	if o.MinWidth < 0 || o.MinHeight < 0 {
		return fmt.Errorf("%w: minimum size %dx%d", ErrInvalidOption, o.MinWidth, o.MinHeight)
	}
	switch o.Bounds {
	case BoundsTight, BoundsDilated:
	default:
		return fmt.Errorf("%w: bounds mode %q", ErrInvalidOption, o.Bounds)
	}
	switch o.Order {
	case OrderDetection, OrderTopLeft:
	default:
		return fmt.Errorf("%w: reading order %q", ErrInvalidOption, o.Order)
	}
	return nil
}

// SortTopLeft orders regions by top edge, then left edge. The sort is stable,
// so regions with the same origin keep their detection order.
func SortTopLeft(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Y != regions[j].Y {
			return regions[i].Y < regions[j].Y
		}
		return regions[i].X < regions[j].X
	})
}
