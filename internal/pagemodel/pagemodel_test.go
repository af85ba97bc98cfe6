package pagemodel

import (
	"errors"
	"math"
	"testing"

	"pagerecon/internal/layout"
)

func TestBuild(t *testing.T) {
	l := &layout.Layout{Regions: []layout.Region{
		{X: 20, Y: 20, Width: 100, Height: 20, Text: "HELLO"},
		{X: 7, Y: 3, Width: 31, Height: 11, Text: ""},
	}}
	entries, err := Build(l, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []Entry{
		{X: 4, Y: 4, Width: 20, Height: 4, Text: "HELLO"},
		{X: 1.4, Y: 0.6, Width: 6.2, Height: 2.2, Text: ""},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if !approxEqual(entries[i], want[i]) {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestBuildEmptyLayout(t *testing.T) {
	for _, l := range []*layout.Layout{nil, {}} {
		entries, err := Build(l, DefaultOptions())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("got %v, want empty non-nil slice", entries)
		}
	}
}

func TestBuildRejectsBadScale(t *testing.T) {
	for _, scale := range []float64{0, -5} {
		_, err := Build(&layout.Layout{}, Options{Scale: scale})
		if !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %v: err = %v, want ErrInvalidScale", scale, err)
		}
	}
}

func TestMapRoundTrip(t *testing.T) {
	for _, opts := range []Options{
		DefaultOptions(),
		{Scale: 2.83465},
		{Scale: 3, OffsetX: 10, OffsetY: 15},
	} {
		for _, r := range []layout.Region{
			{X: 0, Y: 0, Width: 31, Height: 11},
			{X: 123, Y: 457, Width: 640, Height: 99, Text: "x"},
		} {
			got := opts.Unmap(opts.Map(r))
			if got != r {
				t.Errorf("scale %v: round trip %v -> %v", opts.Scale, r, got)
			}
		}
	}
}

func approxEqual(a, b Entry) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps &&
		a.Text == b.Text
}
