package plate

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/raster"
	"github.com/pspoerri/platepyramid/internal/store"
)

// InsertOptions configures a pyramid-build job.
type InsertOptions struct {
	// Transaction is the version all writes of this job are made under.
	Transaction store.TransactionID
	// Preblur applies the 2-tap averaging filter before each mipmap
	// decimation (antialiased; slightly slower).
	Preblur bool
	// Concurrency is the number of workers regenerating tiles within one
	// level. Levels themselves are barriers: level L starts only after
	// level L+1 completed. Values < 1 mean single-threaded.
	Concurrency int
}

// InsertStats reports what an Insert wrote.
type InsertStats struct {
	Level         int
	Hemisphere    Hemisphere
	LeafTiles     int64
	AncestorTiles int64
}

// Insert runs the typical pyramid-build job for one input image: reproject
// it into the plate frame, write the non-transparent leaf tiles at the
// selected level, then regenerate all ancestor tiles bottom-up.
func (m *Manager) Insert(img *raster.Image, georef geodesy.GeoReference, opts InsertOptions) (InsertStats, error) {
	res, err := m.Reproject(img, georef)
	if err != nil {
		return InsertStats{}, err
	}

	leaves, err := m.WriteLeaves(res, opts.Transaction)
	if err != nil {
		return InsertStats{}, err
	}
	stats := InsertStats{
		Level:      res.Level,
		Hemisphere: res.Hemisphere,
		LeafTiles:  int64(len(leaves)),
	}

	written, err := m.RegenerateAncestors(leaves, opts)
	if err != nil {
		return stats, err
	}
	stats.AncestorTiles = written
	return stats, nil
}

// WriteLeaves splits a reprojection result into tiles on the plate's global
// pixel grid at the chosen level and writes every tile that received at
// least one valid pixel. Fully transparent tiles are skipped: the sparse
// pyramid invariant applies to leaf writes too. Callers ingesting several
// images under one transaction collect the returned addresses and run
// RegenerateAncestors once over all of them.
func (m *Manager) WriteLeaves(res *ReprojectionResult, tx store.TransactionID) ([]store.Address, error) {
	tileSize := m.Store.DefaultTileSize()
	gridTiles := 1 << res.Level

	minX, minY := int(res.BBox.MinX), int(res.BBox.MinY)
	maxX, maxY := int(res.BBox.MaxX), int(res.BBox.MaxY)

	colLo := clampTile(floorDiv(minX, tileSize), gridTiles)
	colHi := clampTile(floorDiv(maxX-1, tileSize), gridTiles)
	rowLo := clampTile(floorDiv(minY, tileSize), gridTiles)
	rowHi := clampTile(floorDiv(maxY-1, tileSize), gridTiles)

	var leaves []store.Address
	for row := rowLo; row <= rowHi; row++ {
		for col := colLo; col <= colHi; col++ {
			// Intersection of this tile with the warped image, in global
			// pixel coordinates.
			x0 := max(col*tileSize, minX)
			x1 := min((col+1)*tileSize, maxX)
			y0 := max(row*tileSize, minY)
			y1 := min((row+1)*tileSize, maxY)
			if x0 >= x1 || y0 >= y1 {
				continue
			}

			patch := res.Image.Crop(x0-minX, y0-minY, x1-x0, y1-y0)
			if patch.IsTransparent() {
				continue
			}
			tile := raster.New(tileSize, tileSize, res.Image.Channels)
			tile.PlaceAt(patch, x0-col*tileSize, y0-row*tileSize)

			if err := m.Store.WriteUpdate(tile, col, row, res.Level, tx); err != nil {
				return leaves, fmt.Errorf("plate: writing leaf tile %d/%d@%d: %w", col, row, res.Level, err)
			}
			leaves = append(leaves, store.Address{Col: col, Row: row, Level: res.Level})
		}
	}
	return leaves, nil
}

// RegenerateAncestors regenerates every ancestor of the given tiles,
// bottom-up, finest level first. Tiles within one level are independent and
// processed by a worker pool; moving up a level is a barrier, honoring the
// precondition that children are final before their parent is requested.
// Returns the number of regeneration attempts (transparent results write
// nothing but still count as work).
func (m *Manager) RegenerateAncestors(tiles []store.Address, opts InsertOptions) (int64, error) {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	pending := make(map[int][]store.Address)
	maxLevel := 0
	for _, t := range tiles {
		pending[t.Level] = append(pending[t.Level], t)
		if t.Level > maxLevel {
			maxLevel = t.Level
		}
	}

	var regenerated int64
	for level := maxLevel; level > 0; level-- {
		cur := pending[level]
		if len(cur) == 0 {
			continue
		}
		parents := parentSet(cur)

		jobs := make(chan store.Address, concurrency*2)
		errCh := make(chan error, 1)
		var wg sync.WaitGroup
		var count atomic.Int64
		var aborted atomic.Bool

		// Workers keep draining jobs after a failure so the feeder below
		// never blocks on a full channel with nobody receiving.
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for addr := range jobs {
					if aborted.Load() {
						continue
					}
					if err := m.RegenerateTile(addr.Col, addr.Row, addr.Level, opts.Transaction, opts.Preblur); err != nil {
						select {
						case errCh <- err:
						default:
						}
						aborted.Store(true)
						continue
					}
					count.Add(1)
				}
			}()
		}

		for _, p := range parents {
			jobs <- p
		}
		close(jobs)
		wg.Wait()

		select {
		case err := <-errCh:
			return regenerated, fmt.Errorf("plate: regenerating level %d: %w", level-1, err)
		default:
		}

		regenerated += count.Load()
		pending[level-1] = append(pending[level-1], parents...)
	}
	return regenerated, nil
}

// parentSet returns the unique parent addresses of tiles, all of which must
// share one level.
func parentSet(tiles []store.Address) []store.Address {
	seen := make(map[store.Address]struct{}, len(tiles))
	var parents []store.Address
	for _, t := range tiles {
		p := store.Address{Col: t.Col / 2, Row: t.Row / 2, Level: t.Level - 1}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		parents = append(parents, p)
	}
	return parents
}

// floorDiv divides rounding toward negative infinity, so tile indices of
// negative global pixels land on the correct tile.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func clampTile(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
