// Package pagemodel turns a recognized layout into renderer-ready entries by
// mapping pixel coordinates into output document units.
package pagemodel

import (
	"errors"
	"fmt"

	"pagerecon/internal/layout"
)

// DefaultScale is the number of source pixels per document unit.
const DefaultScale = 5.0

// ErrInvalidScale is returned when the scale divisor is not positive.
var ErrInvalidScale = errors.New("page scale must be greater than zero")

// Options controls the pixel to page mapping.
type Options struct {
	// Scale divides pixel coordinates to get document units. It assumes a
	// fixed pixel density regardless of the scan resolution or page size.
	Scale float64

	// OffsetX and OffsetY are added, in document units, after scaling.
	OffsetX float64
	OffsetY float64
}

// DefaultOptions returns the stock mapping: divide by DefaultScale, no offset.
func DefaultOptions() Options {
	return Options{Scale: DefaultScale}
}

// Entry is one block of text placed on the output page.
type Entry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Text   string  `json:"text"`
}

// Map converts a single region.
func (o Options) Map(r layout.Region) Entry {
	return Entry{
		X:      float64(r.X)/o.Scale + o.OffsetX,
		Y:      float64(r.Y)/o.Scale + o.OffsetY,
		Width:  float64(r.Width) / o.Scale,
		Height: float64(r.Height) / o.Scale,
		Text:   r.Text,
	}
}

// Unmap converts an entry back to pixel coordinates, rounding to the
// nearest pixel. Text is carried over.
func (o Options) Unmap(e Entry) layout.Region {
	round := func(v float64) int {
		if v < 0 {
			return int(v - 0.5)
		}
		return int(v + 0.5)
	}
	return layout.Region{
		X:      round((e.X - o.OffsetX) * o.Scale),
		Y:      round((e.Y - o.OffsetY) * o.Scale),
		Width:  round(e.Width * o.Scale),
		Height: round(e.Height * o.Scale),
		Text:   e.Text,
	}
}

// Build returns one entry per region of l, in the layout's order. Regions
// with empty text still produce an entry.
func Build(l *layout.Layout, opts Options) ([]Entry, error) {
	if opts.Scale <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScale, opts.Scale)
	}
	entries := make([]Entry, 0, l.Len())
	if l == nil {
		return entries, nil
	}
	for _, r := range l.Regions {
		entries = append(entries, opts.Map(r))
	}
	return entries, nil
}
