package geodesy

import "math"

// GeoTransform converts pixel coordinates between two georeferences by going
// through lon/lat: source pixel → source projection → lon/lat → destination
// projection → destination pixel.
type GeoTransform struct {
	From GeoReference
	To   GeoReference
}

// NewGeoTransform builds a transform from one georeference to another.
func NewGeoTransform(from, to GeoReference) GeoTransform {
	return GeoTransform{From: from, To: to}
}

// Forward maps a pixel coordinate in From to a pixel coordinate in To.
func (t GeoTransform) Forward(p Point) Point {
	return t.To.LonLatToPixel(t.From.PixelToLonLat(p))
}

// Reverse maps a pixel coordinate in To back to a pixel coordinate in From.
func (t GeoTransform) Reverse(p Point) Point {
	return t.From.LonLatToPixel(t.To.PixelToLonLat(p))
}

// forwardBBoxSteps is the number of samples taken along each edge of the
// source bbox. Projected edges are curves, so corners alone under-cover.
const forwardBBoxSteps = 32

// ForwardBBox returns the destination-pixel bounding box of a source-pixel
// bounding box by forward-transforming points along its perimeter and growing
// the result to integer bounds. Non-finite samples (points outside the
// destination projection's domain) are skipped.
func (t GeoTransform) ForwardBBox(b BBox) BBox {
	var out BBox
	sample := func(x, y float64) {
		p := t.Forward(Point{X: x, Y: y})
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return
		}
		out.Grow(p)
	}
	for i := 0; i <= forwardBBoxSteps; i++ {
		f := float64(i) / forwardBBoxSteps
		x := b.MinX + f*b.Width()
		y := b.MinY + f*b.Height()
		sample(x, b.MinY)
		sample(x, b.MaxY)
		sample(b.MinX, y)
		sample(b.MaxX, y)
	}
	if out.Empty() {
		return out
	}
	return Rect(math.Floor(out.MinX), math.Floor(out.MinY), math.Ceil(out.MaxX), math.Ceil(out.MaxY))
}
