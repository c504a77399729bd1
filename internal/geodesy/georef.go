package geodesy

import (
	"fmt"
	"math"
)

// ProjectionKind identifies one of the supported map projections. The set is
// closed: a GeoReference never dispatches to user code.
type ProjectionKind int

const (
	// Geographic means projected coordinates are lon/lat degrees directly.
	Geographic ProjectionKind = iota
	// Stereographic is the polar stereographic projection on the datum
	// sphere, parameterized by center latitude (±90), center longitude,
	// scale factor and false easting/northing.
	Stereographic
	// WebMercator is the spherical mercator projection, x/y in meters.
	WebMercator
)

func (k ProjectionKind) String() string {
	switch k {
	case Geographic:
		return "geographic"
	case Stereographic:
		return "stereographic"
	case WebMercator:
		return "webmercator"
	default:
		return fmt.Sprintf("projection(%d)", int(k))
	}
}

// GeoReference ties a raster's pixel grid to the planet: a projection mapping
// lon/lat to planar coordinates, plus a 3×3 affine transform mapping pixel
// coordinates to those planar coordinates. Immutable once configured.
type GeoReference struct {
	Datum Datum

	kind      ProjectionKind
	centerLat float64 // degrees; ±90 for polar stereographic
	centerLon float64 // degrees
	scale     float64
	falseE    float64
	falseN    float64

	transform Matrix3
	inverse   Matrix3
}

// NewGeoReference returns a geographic (lon/lat) georeference with an
// identity pixel transform for the given datum.
func NewGeoReference(datum Datum) GeoReference {
	return GeoReference{
		Datum:     datum,
		kind:      Geographic,
		scale:     1,
		transform: Identity(),
		inverse:   Identity(),
	}
}

// Kind returns the projection kind.
func (g *GeoReference) Kind() ProjectionKind { return g.kind }

// Transform returns the pixel-to-projected affine transform.
func (g *GeoReference) Transform() Matrix3 { return g.transform }

// SetGeographic selects the identity lon/lat projection.
func (g *GeoReference) SetGeographic() {
	g.kind = Geographic
	g.centerLat, g.centerLon = 0, 0
	g.scale = 1
	g.falseE, g.falseN = 0, 0
}

// SetStereographic selects a polar stereographic projection. centerLat must
// be +90 or -90 (the projection center pole); centerLon rotates the map about
// the pole; scale is the scale factor at the pole.
func (g *GeoReference) SetStereographic(centerLat, centerLon, scale, falseEasting, falseNorthing float64) {
	g.kind = Stereographic
	g.centerLat = centerLat
	g.centerLon = centerLon
	g.scale = scale
	g.falseE = falseEasting
	g.falseN = falseNorthing
}

// SetWebMercator selects the spherical mercator projection.
func (g *GeoReference) SetWebMercator() {
	g.kind = WebMercator
	g.centerLat, g.centerLon = 0, 0
	g.scale = 1
	g.falseE, g.falseN = 0, 0
}

// SetTransform installs the pixel-to-projected affine transform. Panics if
// the transform is singular: a georeference without an invertible pixel
// mapping cannot address pixels at all.
func (g *GeoReference) SetTransform(m Matrix3) {
	inv, ok := m.Inverse()
	if !ok {
		panic("geodesy: singular georeference transform")
	}
	g.transform = m
	g.inverse = inv
}

// PixelToProjected maps pixel coordinates to projected planar coordinates.
func (g *GeoReference) PixelToProjected(p Point) Point {
	return g.transform.Apply(p)
}

// ProjectedToPixel maps projected planar coordinates to pixel coordinates.
func (g *GeoReference) ProjectedToPixel(p Point) Point {
	return g.inverse.Apply(p)
}

// PixelToLonLat maps pixel coordinates to lon/lat degrees.
func (g *GeoReference) PixelToLonLat(p Point) Point {
	return g.projectedToLonLat(g.transform.Apply(p))
}

// LonLatToPixel maps lon/lat degrees to pixel coordinates.
func (g *GeoReference) LonLatToPixel(ll Point) Point {
	return g.inverse.Apply(g.lonLatToProjected(ll))
}

const degToRad = math.Pi / 180.0

// lonLatToProjected applies the forward projection. ll is lon/lat degrees.
func (g *GeoReference) lonLatToProjected(ll Point) Point {
	switch g.kind {
	case Geographic:
		return ll
	case WebMercator:
		r := g.Datum.SemiMajorAxis
		x := r * ll.X * degToRad
		y := r * math.Log(math.Tan((90.0+ll.Y)*degToRad/2.0))
		return Point{X: x, Y: y}
	case Stereographic:
		return g.stereoForward(ll)
	default:
		panic("geodesy: unknown projection kind")
	}
}

// projectedToLonLat applies the inverse projection, returning lon/lat degrees.
func (g *GeoReference) projectedToLonLat(p Point) Point {
	switch g.kind {
	case Geographic:
		return p
	case WebMercator:
		r := g.Datum.SemiMajorAxis
		lon := p.X / (r * degToRad)
		lat := (2.0*math.Atan(math.Exp(p.Y/r)) - math.Pi/2.0) / degToRad
		return Point{X: lon, Y: lat}
	case Stereographic:
		return g.stereoInverse(p)
	default:
		panic("geodesy: unknown projection kind")
	}
}

// stereoForward is the spherical polar stereographic forward projection
// (Snyder, Map Projections — A Working Manual, eq. 21-5/21-6 with the pole as
// projection center). The sphere radius is the datum semi-major axis.
func (g *GeoReference) stereoForward(ll Point) Point {
	r := g.Datum.SemiMajorAxis
	lam := (ll.X - g.centerLon) * degToRad
	phi := ll.Y * degToRad

	if g.centerLat > 0 {
		// North pole: rho grows toward the equator.
		rho := 2 * r * g.scale * math.Tan(math.Pi/4-phi/2)
		return Point{
			X: rho*math.Sin(lam) + g.falseE,
			Y: -rho*math.Cos(lam) + g.falseN,
		}
	}
	// South pole.
	rho := 2 * r * g.scale * math.Tan(math.Pi/4+phi/2)
	return Point{
		X: rho*math.Sin(lam) + g.falseE,
		Y: rho*math.Cos(lam) + g.falseN,
	}
}

// stereoInverse is the spherical polar stereographic inverse projection.
func (g *GeoReference) stereoInverse(p Point) Point {
	r := g.Datum.SemiMajorAxis
	x := p.X - g.falseE
	y := p.Y - g.falseN
	rho := math.Hypot(x, y)

	var phi, lam float64
	if g.centerLat > 0 {
		phi = math.Pi/2 - 2*math.Atan(rho/(2*r*g.scale))
		lam = math.Atan2(x, -y)
	} else {
		phi = -math.Pi/2 + 2*math.Atan(rho/(2*r*g.scale))
		lam = math.Atan2(x, y)
	}
	return Point{
		X: lam/degToRad + g.centerLon,
		Y: phi / degToRad,
	}
}
