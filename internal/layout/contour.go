package layout

import "image"

// blob is one outer contour of the dilated mask.
type blob struct {
	// outer is the bounding box of the contour itself.
	outer image.Rectangle
	// ink is the bounding box of the undilated foreground inside the contour.
	// Empty when the blob holds no original foreground.
	ink image.Rectangle
}

// outerBlobs returns one blob per external contour of mask, in the order a
// raster scan first meets each contour. Only outer boundaries count: holes
// are filled first, so anything nested inside a blob's hole belongs to that
// blob. Foreground is 8-connected and background 4-connected, which keeps the
// two definitions consistent.
//
// ink is the undilated mask; it must have the same size as mask.
func outerBlobs(mask, ink *bitmap) []blob {
	if mask.w == 0 || mask.h == 0 {
		return nil
	}
	solid := fillHoles(mask)

	w, h := solid.w, solid.h
	seen := make([]bool, w*h)
	queue := make([]int, 0, 256)
	var blobs []blob

	for start := range solid.pix {
		if solid.pix[start] == 0 || seen[start] {
			continue
		}
		seen[start] = true
		queue = append(queue[:0], start)

		var b blob
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w

			px := image.Rect(x, y, x+1, y+1)
			b.outer = b.outer.Union(px)
			if ink.pix[i] != 0 {
				b.ink = b.ink.Union(px)
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if solid.pix[j] != 0 && !seen[j] {
						seen[j] = true
						queue = append(queue, j)
					}
				}
			}
		}
		blobs = append(blobs, b)
	}
	return blobs
}

// fillHoles returns a copy of m in which every background pixel that cannot
// reach the image border through 4-connected background is set.
func fillHoles(m *bitmap) *bitmap {
	w, h := m.w, m.h
	outside := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(i int) {
		if m.pix[i] == 0 && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}

	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}

	out := m.clone()
	for i, v := range out.pix {
		if v == 0 && !outside[i] {
			out.pix[i] = 1
		}
	}
	return out
}
