package plate

import (
	"errors"
	"fmt"
	"log"

	"github.com/pspoerri/platepyramid/internal/raster"
	"github.com/pspoerri/platepyramid/internal/store"
)

// preblurKernel is the fixed 2-tap averaging filter applied before decimation
// when preblur is requested. Convolve + decimate-by-2 averages each 2×2 block.
var preblurKernel = []float32{0.5, 0.5}

// RegenerateTile rebuilds the tile at (col, row, level) from its four
// children at level+1, reading them at exactly tx. The caller drives levels
// bottom-up (finest first) so children are already final for tx; this
// function never recurses.
//
// Absent children are expected and leave their quadrant transparent; any
// other read failure aborts the tile. With preblur the super-tile is blurred
// with the 2-tap averaging kernel along both axes (replicate edges) before
// taking every second sample; without it, samples are taken directly.
//
// A result that composes to full transparency is never written — the sparse
// pyramid stores no all-transparent tiles. Given identical children at tx,
// repeated calls produce byte-identical output and an equivalent write.
func (m *Manager) RegenerateTile(col, row, level int, tx store.TransactionID, preblur bool) error {
	tileSize := m.Store.DefaultTileSize()
	super := raster.New(2*tileSize, 2*tileSize, m.Store.Channels())

	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			childCol := 2*col + i
			childRow := 2*row + j
			child, err := m.Store.Read(childCol, childRow, level+1, tx, true)
			if errors.Is(err, store.ErrTileNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("plate: reading child tile %d/%d@%d: %w", childCol, childRow, level+1, err)
			}
			super.PlaceAt(child, tileSize*i, tileSize*j)
		}
	}

	var tile *raster.Image
	if preblur {
		tile = super.SeparableConvolve(preblurKernel).Subsample(2)
	} else {
		tile = super.Subsample(2)
	}

	if tile.IsTransparent() {
		return nil
	}
	if m.Verbose {
		log.Printf("plate: writing %d/%d@%d", col, row, level)
	}
	if err := m.Store.WriteUpdate(tile, col, row, level, tx); err != nil {
		return fmt.Errorf("plate: writing tile %d/%d@%d: %w", col, row, level, err)
	}
	return nil
}
