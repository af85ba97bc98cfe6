//go:build gocv

package preprocess

import (
	"image"

	"gocv.io/x/gocv"

	"pagerecon/internal/logger"
)

// median3x3 runs OpenCV's median blur with a 3x3 aperture. Borders are
// replicated, as in the pure-Go build.
func median3x3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return image.NewGray(image.Rect(0, 0, w, h))
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, grayPix(g))
	if err != nil {
		logger.WithComponent("preprocess").Error().Err(err).Msg("Failed to convert image to OpenCV matrix")
		copy(out.Pix, grayPix(g))
		return out
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.MedianBlur(src, &dst, 3)

	copy(out.Pix, dst.ToBytes())
	return out
}

// grayPix returns the pixels of g as one tightly packed row-major slice.
func grayPix(g *image.Gray) []byte {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if g.Stride == w && len(g.Pix) == w*h {
		return g.Pix
	}
	pix := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
		pix = append(pix, g.Pix[off:off+w]...)
	}
	return pix
}
