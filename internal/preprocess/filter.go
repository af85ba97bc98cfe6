package preprocess

import (
	"image"
	"math"

	"pagerecon/internal/layout"
)

const (
	skewStep      = 0.5
	maxSkewPoints = 40000
)

// Deskew estimates the skew of the text lines in img with a projection
// profile search and rotates the image to straighten them. It returns the
// corrected image and the detected skew in degrees; positive means lines
// descend to the right. A page without ink is returned unrotated.
func Deskew(img image.Image, maxAngle float64) (*image.Gray, float64) {
	g := layout.Grayscale(img)
	angle := estimateSkew(g, maxAngle)
	if angle == 0 {
		return g, 0
	}
	return Rotate(g, angle), angle
}

func estimateSkew(g *image.Gray, maxAngle float64) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 || maxAngle <= 0 {
		return 0
	}

	t := layout.OtsuThreshold(layout.Histogram(g))
	var xs, ys []float64
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			if row[x] <= t {
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
			}
		}
	}
	// A blank or solid page has no lines to measure.
	if len(xs) == 0 || len(xs) == w*h {
		return 0
	}
	stride := 1
	if len(xs) > maxSkewPoints {
		stride = len(xs) / maxSkewPoints
	}

	// |p| <= w+h for any angle, so offset keeps every bin index in range.
	offset := w + h
	bins := make([]float64, 2*offset+1)
	score := func(deg float64) float64 {
		for i := range bins {
			bins[i] = 0
		}
		sin, cos := math.Sincos(deg * math.Pi / 180)
		for i := 0; i < len(xs); i += stride {
			p := ys[i]*cos - xs[i]*sin
			bins[int(math.Round(p))+offset]++
		}
		var s float64
		for _, c := range bins {
			s += c * c
		}
		return s
	}

	best, bestScore := 0.0, score(0)
	for a := skewStep; a <= maxAngle+1e-9; a += skewStep {
		for _, cand := range []float64{a, -a} {
			if s := score(cand); s > bestScore {
				best, bestScore = cand, s
			}
		}
	}
	return best
}
