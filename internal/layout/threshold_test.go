package layout

import (
	"image"
	"testing"
)

func TestOtsuThreshold(t *testing.T) {
	tests := []struct {
		name string
		hist map[int]int
		want uint8
	}{
		{"empty", nil, 0},
		{"uniform white", map[int]int{255: 100}, 0},
		{"uniform gray", map[int]int{128: 100}, 0},
		{"black on white", map[int]int{0: 10, 255: 90}, 0},
		{"dark gray on light gray", map[int]int{40: 50, 200: 50}, 40},
		{"three levels", map[int]int{10: 30, 20: 30, 220: 40}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hist [256]int
			for level, n := range tt.hist {
				hist[level] = n
			}
			if got := OtsuThreshold(hist); got != tt.want {
				t.Errorf("OtsuThreshold = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBinarize(t *testing.T) {
	img := page(10, 10, image.Rect(2, 2, 5, 5))
	bin, threshold := Binarize(img)
	if threshold != 0 {
		t.Fatalf("threshold = %d, want 0", threshold)
	}
	if bin.GrayAt(3, 3).Y != 0 {
		t.Errorf("ink pixel not black")
	}
	if bin.GrayAt(8, 8).Y != 0xff {
		t.Errorf("background pixel not white")
	}
}

func TestGrayscaleKeepsOriginImage(t *testing.T) {
	img := page(4, 4)
	if Grayscale(img) != img {
		t.Error("expected origin-based *image.Gray to pass through")
	}
}

func bitmapFrom(rows ...string) *bitmap {
	m := newBitmap(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				m.pix[y*m.w+x] = 1
			}
		}
	}
	return m
}

func (m *bitmap) rows() []string {
	out := make([]string, m.h)
	for y := 0; y < m.h; y++ {
		b := make([]byte, m.w)
		for x := 0; x < m.w; x++ {
			b[x] = '.'
			if m.pix[y*m.w+x] != 0 {
				b[x] = '#'
			}
		}
		out[y] = string(b)
	}
	return out
}

func TestDilate(t *testing.T) {
	src := bitmapFrom(
		".......",
		".......",
		"...#...",
		".......",
		"#......",
	)
	got := dilate(src, 3, 1, 1).rows()
	want := []string{
		".......",
		".......",
		"..###..",
		".......",
		"##.....",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("3x1 dilation row %d = %q, want %q (all %v)", i, got[i], want[i], got)
		}
	}

	// An even kernel is anchored at k/2, so it only grows right and down.
	got = dilate(src, 2, 2, 1).rows()
	want = []string{
		".......",
		".......",
		"...##..",
		"...##..",
		"##.....",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("2x2 dilation row %d = %q, want %q (all %v)", i, got[i], want[i], got)
		}
	}

	if got := dilate(src, 3, 3, 0).rows(); got[2] != "...#..." {
		t.Errorf("zero iterations changed the mask: %v", got)
	}
}

func TestOuterBlobs(t *testing.T) {
	mask := bitmapFrom(
		"#####....",
		"#...#..#.",
		"#.#.#..#.",
		"#...#....",
		"#####...#",
	)
	blobs := outerBlobs(mask, mask)
	if len(blobs) != 3 {
		t.Fatalf("got %d blobs, want 3: %+v", len(blobs), blobs)
	}
	want := []image.Rectangle{
		image.Rect(0, 0, 5, 5), // ring, with the dot in its hole absorbed
		image.Rect(7, 1, 8, 3),
		image.Rect(8, 4, 9, 5),
	}
	for i, b := range blobs {
		if b.outer != want[i] {
			t.Errorf("blob %d outer = %v, want %v", i, b.outer, want[i])
		}
		if b.ink != want[i] {
			t.Errorf("blob %d ink = %v, want %v", i, b.ink, want[i])
		}
	}
}

func TestOuterBlobsDiagonalConnectivity(t *testing.T) {
	mask := bitmapFrom(
		"#..",
		".#.",
		"..#",
	)
	if blobs := outerBlobs(mask, mask); len(blobs) != 1 {
		t.Fatalf("diagonal pixels should form one blob, got %d", len(blobs))
	}
}
