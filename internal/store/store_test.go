package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/platepyramid/internal/raster"
)

func newTestStore(t *testing.T, memLimit int64) *Store {
	t.Helper()
	s, err := New(Config{
		TileSize:         8,
		Channels:         1,
		TempDir:          t.TempDir(),
		MemoryLimitBytes: memLimit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTile(v float32) *raster.Image {
	img := raster.New(8, 8, 1)
	img.Fill([]float32{v}, 1)
	return img
}

func TestReadExactVisibility(t *testing.T) {
	s := newTestStore(t, 0)
	require.NoError(t, s.WriteUpdate(testTile(5), 1, 2, 3, 10))

	// Exact hit.
	img, err := s.Read(1, 2, 3, 10, true)
	require.NoError(t, err)
	assert.Equal(t, float32(5), img.Sample(0, 0, 0))

	// Exact miss at a different transaction, even though a version exists.
	_, err = s.Read(1, 2, 3, 11, true)
	assert.ErrorIs(t, err, ErrTileNotFound)

	// Unknown address.
	_, err = s.Read(9, 9, 4, 10, true)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestReadLatestAtOrBefore(t *testing.T) {
	s := newTestStore(t, 0)
	require.NoError(t, s.WriteUpdate(testTile(1), 0, 0, 0, 10))
	require.NoError(t, s.WriteUpdate(testTile(2), 0, 0, 0, 20))
	require.NoError(t, s.WriteUpdate(testTile(3), 0, 0, 0, 30))

	tests := []struct {
		tx      TransactionID
		want    float32
		missing bool
	}{
		{5, 0, true},   // before the first write
		{10, 1, false}, // exact boundary
		{15, 1, false},
		{20, 2, false},
		{29, 2, false},
		{30, 3, false},
		{99, 3, false}, // after the last write
	}
	for _, tt := range tests {
		img, err := s.Read(0, 0, 0, tt.tx, false)
		if tt.missing {
			assert.ErrorIs(t, err, ErrTileNotFound, "tx %d", tt.tx)
			continue
		}
		require.NoError(t, err, "tx %d", tt.tx)
		assert.Equal(t, tt.want, img.Sample(4, 4, 0), "tx %d", tt.tx)
	}
}

func TestWriteUpdateNeverMutates(t *testing.T) {
	s := newTestStore(t, 0)
	tile := testTile(7)
	require.NoError(t, s.WriteUpdate(tile, 0, 0, 0, 1))

	// Mutating the caller's image afterwards must not affect the stored
	// version; writing a later version must not affect earlier reads.
	tile.SetSample(0, 0, 0, 99)
	require.NoError(t, s.WriteUpdate(testTile(8), 0, 0, 0, 2))

	img, err := s.Read(0, 0, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, float32(7), img.Sample(0, 0, 0))
}

func TestRewriteSameTransactionReplaces(t *testing.T) {
	s := newTestStore(t, 0)
	require.NoError(t, s.WriteUpdate(testTile(1), 0, 0, 0, 5))
	require.NoError(t, s.WriteUpdate(testTile(2), 0, 0, 0, 5))

	img, err := s.Read(0, 0, 0, 5, true)
	require.NoError(t, err)
	assert.Equal(t, float32(2), img.Sample(0, 0, 0))
	assert.Equal(t, 1, s.TileCount())
}

func TestWriteValidation(t *testing.T) {
	s := newTestStore(t, 0)

	wrongSize := raster.New(4, 4, 1)
	assert.Error(t, s.WriteUpdate(wrongSize, 0, 0, 0, 1))

	wrongChannels := raster.New(8, 8, 3)
	assert.Error(t, s.WriteUpdate(wrongChannels, 0, 0, 0, 1))
}

func TestSpillRoundTrip(t *testing.T) {
	// A 1-byte memory limit forces a spill after every write.
	s := newTestStore(t, 1)

	tile := raster.New(8, 8, 1)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			tile.SetSample(x, y, 0, float32(y*8+x))
			tile.SetAlpha(x, y, float32(x)/8)
		}
	}
	require.NoError(t, s.WriteUpdate(tile, 3, 4, 5, 7))
	require.NoError(t, s.WriteUpdate(testTile(9), 0, 0, 1, 7))

	img, err := s.Read(3, 4, 5, 7, true)
	require.NoError(t, err)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, float32(y*8+x), img.Sample(x, y, 0))
			assert.Equal(t, float32(x)/8, img.AlphaAt(x, y))
		}
	}
}

func TestAddressesAndMaxLevel(t *testing.T) {
	s := newTestStore(t, 0)
	assert.Equal(t, -1, s.MaxLevel())

	require.NoError(t, s.WriteUpdate(testTile(1), 0, 0, 0, 1))
	require.NoError(t, s.WriteUpdate(testTile(1), 1, 0, 2, 1))
	require.NoError(t, s.WriteUpdate(testTile(1), 2, 3, 2, 1))

	assert.Equal(t, 2, s.MaxLevel())
	assert.Len(t, s.Addresses(2), 2)
	assert.Len(t, s.Addresses(1), 0)
	assert.Equal(t, 3, s.TileCount())
}
