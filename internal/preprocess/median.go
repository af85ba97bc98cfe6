//go:build !gocv

package preprocess

import "image"

// median3x3 returns a new image where each pixel is the median of its 3x3
// neighborhood.
func median3x3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}

	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				row := g.Pix[clamp(y+dy, h-1)*g.Stride:]
				for dx := -1; dx <= 1; dx++ {
					win[n] = row[clamp(x+dx, w-1)]
					n++
				}
			}
			// insertion sort; nine elements
			for i := 1; i < len(win); i++ {
				for j := i; j > 0 && win[j] < win[j-1]; j-- {
					win[j], win[j-1] = win[j-1], win[j]
				}
			}
			out.Pix[y*out.Stride+x] = win[4]
		}
	}
	return out
}
