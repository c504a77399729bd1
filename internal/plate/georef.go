package plate

import (
	"log"
	"math"

	"github.com/pspoerri/platepyramid/internal/geodesy"
)

// GeoReference derives the plate's georeference at a resolution level. The
// result is deterministic in (level, hemi, datum) and shares no state with
// the manager.
//
// For polar-stereographic plates the pixel density at level is
// tileSize·2^level / (2·semiMajorAxis) pixels per projected meter — exactly
// doubling per level — and the affine transform places the pole's projected
// origin at the center of the pyramid's pixel grid (pixel row axis points
// south, so the Y scale is negated).
//
// For plate-carrée plates the density is tileSize·2^level / 360 pixels per
// degree with the same doubling ladder; hemi is ignored.
func (m *Manager) GeoReference(level int, hemi Hemisphere, datum geodesy.Datum) geodesy.GeoReference {
	g := geodesy.NewGeoReference(datum)
	tileSize := float64(m.Store.DefaultTileSize())

	switch m.Proj {
	case PlateCarree:
		g.SetGeographic()
		pixelsPerDegree := tileSize * math.Pow(2, float64(level)) / 360.0
		t := geodesy.Identity()
		t[0][0] = 1 / pixelsPerDegree
		t[1][1] = -1 / pixelsPerDegree
		t[0][2] = -180
		t[1][2] = 90
		g.SetTransform(t)
	default: // PolarStereographic
		centerLat := 90.0
		if hemi == South {
			centerLat = -90.0
		}
		g.SetStereographic(centerLat, 0, 1.0, 0, 0)
		pixelsPerMeter := tileSize * math.Pow(2, float64(level)) / (2 * datum.SemiMajorAxis)
		t := geodesy.Identity()
		t[0][0] = 1 / pixelsPerMeter
		t[1][1] = -1 / pixelsPerMeter
		t[0][2] = -datum.SemiMajorAxis
		t[1][2] = datum.SemiMajorAxis
		g.SetTransform(t)
	}
	return g
}

// GeoReferenceDefault is the convenience overload that omits the hemisphere.
// Without sample data the hemisphere cannot be inferred, so it always assumes
// North over WGS84 and warns. Callers that know better should use
// GeoReference directly.
func (m *Manager) GeoReferenceDefault(level int) geodesy.GeoReference {
	log.Printf("plate: returning %s georeference that is north pole regardless of data", m.Proj)
	return m.GeoReference(level, North, geodesy.WGS84())
}

// unitGeoReference builds the level-agnostic georeference used while fitting
// a resolution: same projection and origin placement as the plate, but with
// one pixel per projected unit so forward displacements read directly as
// units per source pixel.
func (m *Manager) unitGeoReference(hemi Hemisphere, datum geodesy.Datum) geodesy.GeoReference {
	g := geodesy.NewGeoReference(datum)
	t := geodesy.Identity()
	t[1][1] = -1

	switch m.Proj {
	case PlateCarree:
		g.SetGeographic()
		t[0][2] = -180
		t[1][2] = 90
	default:
		centerLat := 90.0
		if hemi == South {
			centerLat = -90.0
		}
		g.SetStereographic(centerLat, 0, 1.0, 0, 0)
		t[0][2] = -datum.SemiMajorAxis
		t[1][2] = datum.SemiMajorAxis
	}
	g.SetTransform(t)
	return g
}

// plateExtent is the width of the full plate in projected units: the span
// that tileSize·2^level pixels cover at any level.
func (m *Manager) plateExtent(datum geodesy.Datum) float64 {
	if m.Proj == PlateCarree {
		return 360.0
	}
	return 2 * datum.SemiMajorAxis
}
