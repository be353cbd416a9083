// Package region turns two selection corners into a crop rectangle and cuts
// that rectangle out of a captured frame.
package region

import (
	"image"

	"github.com/disintegration/imaging"
)

// Normalize returns the axis-aligned rectangle spanned by p0 and p1, in any
// order. Origin is the element-wise minimum and size the element-wise absolute
// difference. The far edges are clamped to the source size so that
// origin.y+height <= height and origin.x+width <= width. The origin itself
// is never moved. Degenerate rectangles are returned as-is.
func Normalize(p0, p1 image.Point, bounds image.Rectangle) image.Rectangle {
	x, w := span(p0.X, p1.X)
	y, h := span(p0.Y, p1.Y)

	if y+h > bounds.Dy() {
		h = max(bounds.Dy()-y, 0)
	}
	if x+w > bounds.Dx() {
		w = max(bounds.Dx()-x, 0)
	}
	return image.Rect(x, y, x+w, y+h)
}

func span(a, b int) (origin, size int) {
	if a <= b {
		return a, b - a
	}
	return b, a - b
}

// Crop cuts r out of frame. r is relative to the frame's top-left corner.
// A zero-sized or fully out-of-bounds rectangle yields an image whose bounds
// are empty. A nil frame yields nil.
func Crop(frame image.Image, r image.Rectangle) image.Image {
	if frame == nil {
		return nil
	}
	r = r.Add(frame.Bounds().Min)
	if r.Empty() {
		return &image.NRGBA{}
	}
	return imaging.Crop(frame, r)
}

// Extract normalizes the corners against frame and crops. With a nil frame it
// returns nil and the zero rectangle.
func Extract(frame image.Image, p0, p1 image.Point) (image.Image, image.Rectangle) {
	if frame == nil {
		return nil, image.Rectangle{}
	}
	r := Normalize(p0, p1, frame.Bounds())
	return Crop(frame, r), r
}
