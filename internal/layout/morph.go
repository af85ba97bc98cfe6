package layout

// dilate grows the set pixels of m with a kw x kh rectangle anchored at its
// center (kw/2, kh/2), repeated iterations times. Pixels outside the bitmap
// never count as set. A rectangle is separable, so each pass is a horizontal
// then a vertical running-window OR.
func dilate(m *bitmap, kw, kh, iterations int) *bitmap {
	out := m.clone()
	if kw == 1 && kh == 1 {
		return out
	}
	tmp := newBitmap(m.w, m.h)
	for i := 0; i < iterations; i++ {
		dilateRows(out, tmp, kw)
		dilateCols(tmp, out, kh)
	}
	return out
}

// window returns the span [lo, hi] of source indices that feed position i for
// a kernel of size k anchored at k/2, clipped to [0, n).
func window(i, k, n int) (int, int) {
	anchor := k / 2
	lo := i - anchor
	hi := i + k - 1 - anchor
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

func dilateRows(src, dst *bitmap, k int) {
	prefix := make([]int, src.w+1)
	for y := 0; y < src.h; y++ {
		row := src.pix[y*src.w : (y+1)*src.w]
		for x, v := range row {
			prefix[x+1] = prefix[x]
			if v != 0 {
				prefix[x+1]++
			}
		}
		out := dst.pix[y*dst.w : (y+1)*dst.w]
		for x := range out {
			lo, hi := window(x, k, src.w)
			if prefix[hi+1]-prefix[lo] > 0 {
				out[x] = 1
			} else {
				out[x] = 0
			}
		}
	}
}

func dilateCols(src, dst *bitmap, k int) {
	prefix := make([]int, src.h+1)
	for x := 0; x < src.w; x++ {
		for y := 0; y < src.h; y++ {
			prefix[y+1] = prefix[y]
			if src.pix[y*src.w+x] != 0 {
				prefix[y+1]++
			}
		}
		for y := 0; y < src.h; y++ {
			lo, hi := window(y, k, src.h)
			if prefix[hi+1]-prefix[lo] > 0 {
				dst.pix[y*dst.w+x] = 1
			} else {
				dst.pix[y*dst.w+x] = 0
			}
		}
	}
}
