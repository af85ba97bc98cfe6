package layout

import (
	"image"
	"image/draw"
)

// Grayscale returns img as an 8-bit grayscale image whose bounds start at the
// origin. A *image.Gray that already starts at the origin is returned as is;
// anything else is converted with the ITU-R 601 luma weights used by
// color.GrayModel.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			src := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], src[:b.Dx()])
		}
		return out
	}
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Histogram counts the pixels of g per gray level.
func Histogram(g *image.Gray) [256]int {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)]
		for _, v := range row {
			hist[v]++
		}
	}
	return hist
}

// OtsuThreshold picks the gray level that maximizes the between-class
// variance of the histogram. Classes are [0, t] and (t, 255]. When several
// levels reach the maximum the lowest one wins; a histogram with a single
// populated level yields 0.
func OtsuThreshold(hist [256]int) uint8 {
	total := 0
	sum := 0.0
	for level, n := range hist {
		total += n
		sum += float64(level * n)
	}
	if total == 0 {
		return 0
	}

	const eps = 1.1920929e-07 // float32 epsilon

	n := float64(total)
	mean := sum / n
	var (
		q1, sum1 float64
		best     float64
		thresh   int
	)
	for level := 0; level < 256; level++ {
		p := float64(hist[level]) / n
		q1 += p
		sum1 += float64(level) * p
		q2 := 1 - q1
		if min(q1, q2) < eps || max(q1, q2) > 1-eps {
			continue
		}
		mu1 := sum1 / q1
		mu2 := (mean - sum1) / q2
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)
		if sigma > best {
			best = sigma
			thresh = level
		}
	}
	return uint8(thresh)
}

// bitmap is a binary image with 0-origin coordinates; non-zero means set.
type bitmap struct {
	w, h int
	pix  []uint8
}

func newBitmap(w, h int) *bitmap {
	return &bitmap{w: w, h: h, pix: make([]uint8, w*h)}
}

func (m *bitmap) clone() *bitmap {
	c := newBitmap(m.w, m.h)
	copy(c.pix, m.pix)
	return c
}

// invertedMask sets every pixel of g at or below t. Dark ink on a light page
// therefore becomes the foreground.
func invertedMask(g *image.Gray, t uint8) *bitmap {
	b := g.Bounds()
	m := newBitmap(b.Dx(), b.Dy())
	for y := 0; y < m.h; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < m.w; x++ {
			if row[x] <= t {
				m.pix[y*m.w+x] = 1
			}
		}
	}
	return m
}

// Binarize thresholds img with Otsu's method and returns black text on a
// white page, along with the threshold used.
func Binarize(img image.Image) (*image.Gray, uint8) {
	g := Grayscale(img)
	t := OtsuThreshold(Histogram(g))
	m := invertedMask(g, t)
	out := image.NewGray(image.Rect(0, 0, m.w, m.h))
	for i, v := range m.pix {
		if v != 0 {
			out.Pix[i] = 0
		} else {
			out.Pix[i] = 0xff
		}
	}
	return out, t
}
