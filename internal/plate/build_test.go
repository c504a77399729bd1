package plate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/raster"
	"github.com/pspoerri/platepyramid/internal/store"
)

// placedResult fakes the reprojection stage: an already-warped image sitting
// at the given global pixel bbox of the given level.
func placedResult(img *raster.Image, level, minX, minY int) *ReprojectionResult {
	return &ReprojectionResult{
		Image: img,
		Level: level,
		BBox:  geodesy.Rect(float64(minX), float64(minY), float64(minX+img.W), float64(minY+img.H)),
	}
}

func TestWriteLeavesSplitsAcrossTiles(t *testing.T) {
	m := newTestManager(t, PlateCarree, 16)
	st := m.Store.(*store.Store)

	// A 16×16 image at global (24,8) on level 2 straddles the tile boundaries
	// at 32 in x and 16 in y, touching four tiles.
	img := rampImage(16, 16)
	leaves, err := m.WriteLeaves(placedResult(img, 2, 24, 8), 1)
	require.NoError(t, err)

	assert.ElementsMatch(t, []store.Address{
		{Col: 1, Row: 0, Level: 2},
		{Col: 2, Row: 0, Level: 2},
		{Col: 1, Row: 1, Level: 2},
		{Col: 2, Row: 1, Level: 2},
	}, leaves)

	// Global pixel (24,8) is image pixel (0,0); inside tile (1,0) it sits at
	// local (8,8).
	tile, err := st.Read(1, 0, 2, 1, true)
	require.NoError(t, err)
	assert.Equal(t, img.Sample(0, 0, 0), tile.Sample(8, 8, 0))
	assert.Equal(t, float32(0), tile.AlphaAt(0, 0), "pixels before the image start stay transparent")

	// Global pixel (32,16) is image pixel (8,8) and the origin of tile (2,1).
	tile, err = st.Read(2, 1, 2, 1, true)
	require.NoError(t, err)
	assert.Equal(t, img.Sample(8, 8, 0), tile.Sample(0, 0, 0))
}

func TestWriteLeavesSkipsTransparentTiles(t *testing.T) {
	m := newTestManager(t, PlateCarree, 16)
	st := m.Store.(*store.Store)

	// Valid pixels only in the left half: the image straddles two tiles but
	// only the left one receives data.
	img := raster.New(16, 16, 1)
	for y := 0; y < 16; y++ {
		for x := 0; x < 8; x++ {
			img.SetSample(x, y, 0, 1)
			img.SetAlpha(x, y, 1)
		}
	}

	leaves, err := m.WriteLeaves(placedResult(img, 1, 8, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, []store.Address{{Col: 0, Row: 0, Level: 1}}, leaves)
	assert.Equal(t, 1, st.TileCount())
}

func TestWriteLeavesClampsToPlateEdge(t *testing.T) {
	m := newTestManager(t, PlateCarree, 16)
	st := m.Store.(*store.Store)

	// Level 0 has a single 16×16 tile; the image hangs half off its top-left
	// corner. Only the in-plate quarter survives.
	img := rampImage(16, 16)
	leaves, err := m.WriteLeaves(placedResult(img, 0, -8, -8), 1)
	require.NoError(t, err)
	require.Equal(t, []store.Address{{Col: 0, Row: 0, Level: 0}}, leaves)

	tile, err := st.Read(0, 0, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, img.Sample(8, 8, 0), tile.Sample(0, 0, 0))
	assert.Equal(t, float32(0), tile.AlphaAt(9, 9), "pixels past the image stay transparent")
}

func TestRegenerateAncestorsSharedParent(t *testing.T) {
	m := newTestManager(t, PolarStereographic, 16)
	st := m.Store.(*store.Store)

	// Two level-2 siblings under one level-1 parent: the run regenerates the
	// shared parent once, then the root.
	require.NoError(t, st.WriteUpdate(uniformTile(16, 7), 0, 0, 2, 1))
	require.NoError(t, st.WriteUpdate(uniformTile(16, 7), 1, 1, 2, 1))

	n, err := m.RegenerateAncestors([]store.Address{
		{Col: 0, Row: 0, Level: 2},
		{Col: 1, Row: 1, Level: 2},
	}, InsertOptions{Transaction: 1, Concurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "one shared parent plus the root")

	for _, addr := range []store.Address{
		{Col: 0, Row: 0, Level: 1},
		{Col: 0, Row: 0, Level: 0},
	} {
		_, err := st.Read(addr.Col, addr.Row, addr.Level, 1, true)
		assert.NoError(t, err, "ancestor %d/%d@%d", addr.Col, addr.Row, addr.Level)
	}
}

func TestRegenerateAncestorsPropagatesFailure(t *testing.T) {
	m := newTestManager(t, PolarStereographic, 16)
	fs := &faultyStore{Store: m.Store.(*store.Store), failCol: 0, failRow: 0, failLevel: 2}
	m.Store = fs

	require.NoError(t, fs.Store.WriteUpdate(uniformTile(16, 7), 0, 0, 2, 1))

	_, err := m.RegenerateAncestors([]store.Address{{Col: 0, Row: 0, Level: 2}},
		InsertOptions{Transaction: 1, Concurrency: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
}

// brokenStore fails every read, simulating a store whose backing medium died
// mid-job.
type brokenStore struct {
	*store.Store
}

func (b *brokenStore) Read(col, row, level int, tx store.TransactionID, exact bool) (*raster.Image, error) {
	return nil, errDisk
}

func TestRegenerateAncestorsAbortsWhenEveryReadFails(t *testing.T) {
	m := newTestManager(t, PolarStereographic, 16)
	m.Store = &brokenStore{Store: m.Store.(*store.Store)}

	// More parents than a single worker's job buffer holds: the run must
	// return the error instead of blocking on jobs nobody is taking anymore.
	var leaves []store.Address
	for col := 0; col < 16; col += 2 {
		leaves = append(leaves, store.Address{Col: col, Row: 0, Level: 3})
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.RegenerateAncestors(leaves, InsertOptions{Transaction: 1, Concurrency: 1})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, errDisk)
	case <-time.After(5 * time.Second):
		t.Fatal("RegenerateAncestors did not return after a store failure")
	}
}

func TestInsertBuildsFullPyramid(t *testing.T) {
	m := newTestManager(t, PlateCarree, 16)
	st := m.Store.(*store.Store)

	img := rampImage(8, 8)
	stats, err := m.Insert(img, geographicGeoRef(1, -4, 44), InsertOptions{
		Transaction: 1,
		Preblur:     true,
		Concurrency: 4,
	})
	require.NoError(t, err)

	assert.Greater(t, stats.LeafTiles, int64(0))
	assert.GreaterOrEqual(t, stats.AncestorTiles, int64(stats.Level),
		"at least one regeneration per level above the leaves")

	// The chain reaches the root: some level-0 tile must exist.
	require.NotEmpty(t, st.Addresses(0))
	root := st.Addresses(0)[0]
	tile, err := st.Read(root.Col, root.Row, 0, 1, true)
	require.NoError(t, err)
	assert.False(t, tile.IsTransparent())
	assert.Equal(t, stats.Level, st.MaxLevel())
}
