package plate

import (
	"fmt"
	"log"
	"math"

	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/raster"
)

// samplePoints returns the five canonical probe points of an image: the
// center and the midpoints toward each of the four edges. Hemisphere and
// resolution decisions are a vote/maximum over these five samples rather
// than a full-image scan.
func samplePoints(w, h int) [5]geodesy.Point {
	return [5]geodesy.Point{
		{X: float64(w / 2), Y: float64(h / 2)},
		{X: float64(w * 3 / 4), Y: float64(h / 2)},
		{X: float64(w * 1 / 4), Y: float64(h / 2)},
		{X: float64(w / 2), Y: float64(h * 3 / 4)},
		{X: float64(w / 2), Y: float64(h * 1 / 4)},
	}
}

// detectHemisphere votes North when more than two of the five probe points
// lie north of the equator. Images straddling the equator get whichever pole
// the majority of probes favors.
func detectHemisphere(img *raster.Image, georef geodesy.GeoReference) Hemisphere {
	northCount := 0
	for _, p := range samplePoints(img.W, img.H) {
		if georef.PixelToLonLat(p).Y > 0 {
			northCount++
		}
	}
	if northCount > 2 {
		return North
	}
	return South
}

// Reproject warps img from its own georeference into the plate's coordinate
// system, choosing the smallest pyramid level whose native density is at
// least the input's and, for polar plates, the hemisphere the image mostly
// lies in.
//
// The level fit probes the five sample points: at each, the forward
// displacement of a unit pixel step along each axis gives a local achieved
// density (the reciprocal of the smaller displacement, so neither axis is
// undersampled), and the maximum across samples is fitted to the resolution
// ladder. Degenerate zero-displacement samples are skipped.
//
// The warp uses bicubic interpolation with zero edge extension: output
// pixels mapping outside the input are fully transparent.
func (m *Manager) Reproject(img *raster.Image, georef geodesy.GeoReference) (*ReprojectionResult, error) {
	if img.W < 2 || img.H < 2 {
		return nil, fmt.Errorf("plate: input image %dx%d is too small to reproject", img.W, img.H)
	}
	datum := georef.Datum
	tileSize := float64(m.Store.DefaultTileSize())
	extent := m.plateExtent(datum)

	hemi := North
	if m.Proj == PolarStereographic {
		hemi = detectHemisphere(img, georef)
	}

	// Fit the resolution against a unit-scale target frame. The seed is the
	// level-0 density, so an input coarser than level 0 still lands there.
	unit := m.unitGeoReference(hemi, datum)
	geotx := geodesy.NewGeoTransform(georef, unit)

	requested := tileSize / extent
	for _, p := range samplePoints(img.W, img.H) {
		pos := geotx.Forward(p)
		dx := geotx.Forward(geodesy.Point{X: p.X + 1, Y: p.Y})
		dy := geotx.Forward(geodesy.Point{X: p.X, Y: p.Y + 1})
		step := math.Min(math.Hypot(dx.X-pos.X, dx.Y-pos.Y), math.Hypot(dy.X-pos.X, dy.Y-pos.Y))
		if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
			continue // degenerate sample
		}
		if r := 1.0 / step; r > requested {
			requested = r
		}
	}

	// The small log offset keeps rounding noise from bumping an input that
	// exactly matches a level's density up to the next level. The flip side:
	// an input genuinely denser by less than the offset lands on that level
	// rather than the next one.
	level := int(math.Ceil(math.Log2(requested*extent/tileSize) - 1e-9))
	if level < 0 {
		level = 0
	}

	out := m.GeoReference(level, hemi, datum)
	geotx = geodesy.NewGeoTransform(georef, out)
	bbox := geotx.ForwardBBox(geodesy.Rect(0, 0, float64(img.W), float64(img.H)))
	if bbox.Empty() {
		return nil, fmt.Errorf("plate: input image maps entirely outside the %s plate", m.Proj)
	}

	warped := img.Warp(int(bbox.Width()), int(bbox.Height()), func(x, y float64) (float64, float64) {
		p := geotx.Reverse(geodesy.Point{X: bbox.MinX + x, Y: bbox.MinY + y})
		return p.X, p.Y
	}, raster.EdgeZero, raster.KernelBicubic)

	if m.Verbose {
		log.Printf("plate: placing image at level %d with bbox [%g,%g %g,%g] (total %s resolution at this level = %.0f pixels)",
			level, bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY, m.Proj, requested*extent)
		if m.Proj == PolarStereographic {
			log.Printf("plate: this is a %s pole image", hemi)
		}
	}

	return &ReprojectionResult{
		Image:      warped,
		GeoRef:     out,
		Transform:  geotx,
		Level:      level,
		Hemisphere: hemi,
		BBox:       bbox,
		Density:    requested * extent,
	}, nil
}
