package layout

import (
	"image"
	"image/color"
	"image/draw"
)

const overlayStroke = 2

var overlayColor = color.RGBA{G: 0xff, A: 0xff}

// DrawOverlay returns a color copy of gray with a green outline around every
// region. origin is the Min point of the image the regions refer to; gray is
// expected to start at (0, 0).
func DrawOverlay(gray *image.Gray, regions []Region, origin image.Point) *image.RGBA {
	out := image.NewRGBA(gray.Bounds())
	draw.Draw(out, out.Bounds(), gray, gray.Bounds().Min, draw.Src)

	fill := image.NewUniform(overlayColor)
	for _, r := range regions {
		rect := r.Rect().Sub(origin)
		edges := []image.Rectangle{
			image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+overlayStroke),
			image.Rect(rect.Min.X, rect.Max.Y-overlayStroke, rect.Max.X, rect.Max.Y),
			image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+overlayStroke, rect.Max.Y),
			image.Rect(rect.Max.X-overlayStroke, rect.Min.Y, rect.Max.X, rect.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(out, e.Intersect(out.Bounds()), fill, image.Point{}, draw.Src)
		}
	}
	return out
}
