package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/store"
)

func newTestManager(t *testing.T, proj Projection, tileSize int) *Manager {
	t.Helper()
	st, err := store.New(store.Config{
		TileSize: tileSize,
		Channels: 1,
		TempDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &Manager{
		Proj:  proj,
		Datum: geodesy.WGS84(),
		Store: st,
	}
}

func TestGeoReferenceDensityDoublesPerLevel(t *testing.T) {
	for _, proj := range []Projection{PolarStereographic, PlateCarree} {
		t.Run(proj.String(), func(t *testing.T) {
			m := newTestManager(t, proj, 256)
			for level := 0; level < 12; level++ {
				cur := m.GeoReference(level, North, m.Datum)
				next := m.GeoReference(level+1, North, m.Datum)
				// Pixel size halves per level, so density exactly doubles.
				assert.InEpsilon(t, 2.0, cur.Transform()[0][0]/next.Transform()[0][0], 1e-12, "level %d", level)
			}
		})
	}
}

func TestPolarStereoGeoReferenceAffine(t *testing.T) {
	m := newTestManager(t, PolarStereographic, 256)
	datum := m.Datum
	r := datum.SemiMajorAxis

	g := m.GeoReference(2, North, datum)
	tr := g.Transform()

	// 256·2²/(2R) pixels per meter.
	pixelsPerMeter := 256.0 * 4.0 / (2.0 * r)
	assert.InEpsilon(t, 1.0/pixelsPerMeter, tr[0][0], 1e-12)
	assert.InEpsilon(t, -1.0/pixelsPerMeter, tr[1][1], 1e-12)
	assert.InEpsilon(t, -r, tr[0][2], 1e-12)
	assert.InEpsilon(t, r, tr[1][2], 1e-12)
	assert.Equal(t, geodesy.Stereographic, g.Kind())

	// The pole sits at the center of the pixel grid.
	center := 256.0 * 4.0 / 2.0
	ll := g.PixelToLonLat(geodesy.Point{X: center, Y: center})
	assert.InDelta(t, 90, ll.Y, 1e-9)

	// South hemisphere flips the projection center.
	gs := m.GeoReference(2, South, datum)
	ll = gs.PixelToLonLat(geodesy.Point{X: center, Y: center})
	assert.InDelta(t, -90, ll.Y, 1e-9)
}

func TestPlateCarreeGeoReferenceAffine(t *testing.T) {
	m := newTestManager(t, PlateCarree, 256)
	g := m.GeoReference(0, North, m.Datum)
	tr := g.Transform()

	pixelsPerDegree := 256.0 / 360.0
	assert.InEpsilon(t, 1.0/pixelsPerDegree, tr[0][0], 1e-12)
	assert.InEpsilon(t, -1.0/pixelsPerDegree, tr[1][1], 1e-12)
	assert.InEpsilon(t, -180.0, tr[0][2], 1e-12)
	assert.InEpsilon(t, 90.0, tr[1][2], 1e-12)

	// Pixel (0,0) is the north-west corner, the grid center is (0°, 0°).
	ll := g.PixelToLonLat(geodesy.Point{X: 128, Y: 64})
	assert.InDelta(t, 0, ll.X, 1e-9)
	assert.InDelta(t, 0, ll.Y, 1e-9)
}

func TestGeoReferenceDefaultAssumesNorth(t *testing.T) {
	// The hemisphere-less convenience cannot infer a hemisphere and always
	// picks North (and warns). The grid center must be the north pole.
	m := newTestManager(t, PolarStereographic, 256)
	g := m.GeoReferenceDefault(0)
	ll := g.PixelToLonLat(geodesy.Point{X: 128, Y: 128})
	assert.InDelta(t, 90, ll.Y, 1e-9)
}

func TestParseProjection(t *testing.T) {
	p, err := ParseProjection("polarstereographic")
	require.NoError(t, err)
	assert.Equal(t, PolarStereographic, p)

	p, err = ParseProjection("platecarree")
	require.NoError(t, err)
	assert.Equal(t, PlateCarree, p)

	_, err = ParseProjection("mercator")
	assert.Error(t, err)
}
