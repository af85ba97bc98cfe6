// Package preprocess loads page images and prepares the working image that
// layout extraction and recognition share.
//
// Clean always runs. Binarize, Resize, Deskew and Sharpen are optional and,
// when enabled, run in that order. No step modifies its input.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pagerecon/internal/layout"
	"pagerecon/internal/logger"
)

var (
	// ErrImageNotFound is returned when the input path does not exist.
	ErrImageNotFound = errors.New("image not found")

	// ErrUnsupportedImage is returned when the file cannot be decoded as an image.
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")
)

// Defaults for the optional steps.
const (
	DefaultResizeWidth  = 1024
	DefaultResizeHeight = 1024
	DefaultMaxSkew      = 10.0
)

// Options selects the optional steps.
type Options struct {
	Binarize bool

	// Resize scales to Width x Height. A zero dimension keeps the aspect ratio.
	Resize bool
	Width  int
	Height int

	// Deskew searches angles in [-MaxSkew, MaxSkew] degrees.
	Deskew  bool
	MaxSkew float64

	Sharpen bool
}

// DefaultOptions returns options with every optional step disabled.
func DefaultOptions() Options {
	return Options{
		Width:   DefaultResizeWidth,
		Height:  DefaultResizeHeight,
		MaxSkew: DefaultMaxSkew,
	}
}

// Load decodes the image at path, applying any EXIF orientation.
func Load(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}
	return img, nil
}

// Apply runs Clean followed by the enabled optional steps.
func Apply(img image.Image, opts Options) *image.Gray {
	log := logger.WithComponent("preprocess")
	start := time.Now()

	g := Clean(img)
	if opts.Binarize {
		g = Binarize(g)
	}
	if opts.Resize {
		g = Resize(g, opts.Width, opts.Height)
	}
	if opts.Deskew {
		var angle float64
		g, angle = Deskew(g, opts.MaxSkew)
		log.Debug().Float64("angle", angle).Msg("Deskewed")
	}
	if opts.Sharpen {
		g = Sharpen(g)
	}

	log.Debug().
		Int("width", g.Rect.Dx()).
		Int("height", g.Rect.Dy()).
		Dur("duration", time.Since(start)).
		Msg("Working image ready")
	return g
}

// Clean converts img to grayscale and removes speckle noise with a 3x3
// median filter. Border pixels replicate their nearest neighbor.
func Clean(img image.Image) *image.Gray {
	return median3x3(layout.Grayscale(img))
}

// Binarize returns black text on a white page using Otsu's threshold.
func Binarize(img image.Image) *image.Gray {
	g, _ := layout.Binarize(img)
	return g
}

// Resize scales img to width x height with an area-averaging filter.
func Resize(img image.Image, width, height int) *image.Gray {
	if width <= 0 && height <= 0 {
		return layout.Grayscale(img)
	}
	return toGray(imaging.Resize(img, width, height, imaging.Box))
}

// Sharpen applies the [0 -1 0; -1 5 -1; 0 -1 0] kernel.
func Sharpen(img image.Image) *image.Gray {
	kernel := [9]float64{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	}
	return toGray(imaging.Convolve3x3(img, kernel, nil))
}

// Rotate turns img counter-clockwise by angle degrees around its center,
// keeping the original size and filling uncovered corners with white.
func Rotate(img image.Image, angle float64) *image.Gray {
	b := img.Bounds()
	rotated := imaging.Rotate(img, angle, color.White)
	return toGray(imaging.CropCenter(rotated, b.Dx(), b.Dy()))
}

func toGray(img image.Image) *image.Gray {
	return layout.Grayscale(img)
}
