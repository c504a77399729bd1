// Package plate implements the plate manager: it derives the pyramid's
// native map projection and affine geometry at any resolution level,
// reprojects arbitrarily-projected input imagery into the pyramid while
// picking the best-fit level (and hemisphere, for polar plates), and
// regenerates ancestor tiles by compositing and downsampling their children.
package plate

import (
	"fmt"

	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/raster"
	"github.com/pspoerri/platepyramid/internal/store"
)

// Hemisphere selects which pole a polar-stereographic plate is centered on.
type Hemisphere int

const (
	North Hemisphere = iota
	South
)

func (h Hemisphere) String() string {
	if h == South {
		return "south"
	}
	return "north"
}

// Projection identifies the plate's pyramid geometry. The set is closed and
// fixed at plate creation time: it must match the store's on-disk geometry,
// so new projections cannot appear at runtime.
type Projection int

const (
	// PolarStereographic plates cover one pole; the pole sits at the
	// projected origin, which the pixel transform places at the center of
	// the level-0 tile.
	PolarStereographic Projection = iota
	// PlateCarree plates cover the whole globe in equirectangular lon/lat.
	PlateCarree
)

func (p Projection) String() string {
	switch p {
	case PolarStereographic:
		return "polarstereographic"
	case PlateCarree:
		return "platecarree"
	default:
		return fmt.Sprintf("projection(%d)", int(p))
	}
}

// ParseProjection converts a header/CLI string to a Projection.
func ParseProjection(s string) (Projection, error) {
	switch s {
	case "polarstereographic":
		return PolarStereographic, nil
	case "platecarree":
		return PlateCarree, nil
	default:
		return 0, fmt.Errorf("plate: unknown projection %q", s)
	}
}

// TileStore is the slice of the tile store the plate manager needs. The
// concrete *store.Store satisfies it; see its docs for the read/write
// visibility contract.
type TileStore interface {
	// Read returns the tile at (col, row, level) visible at tx. With exact
	// set, only a version written at precisely tx is visible. Absence is
	// reported as store.ErrTileNotFound.
	Read(col, row, level int, tx store.TransactionID, exact bool) (*raster.Image, error)
	// WriteUpdate stores img as a new version at tx; it never mutates an
	// existing version in place.
	WriteUpdate(img *raster.Image, col, row, level int, tx store.TransactionID) error
	// DefaultTileSize returns the fixed tile edge length of the pyramid.
	DefaultTileSize() int
	// Channels returns the fixed per-pixel channel count of the pyramid.
	Channels() int
}

// Compile-time check that the concrete store satisfies the interface.
var _ TileStore = (*store.Store)(nil)

// Manager is the plate manager for one pyramid. It owns no concurrency state
// of its own: Reproject is pure, and RegenerateTile touches only the store
// addresses it names, so independent tile addresses can be processed by any
// number of workers.
type Manager struct {
	Proj    Projection
	Datum   geodesy.Datum
	Store   TileStore
	Verbose bool
}

// ReprojectionResult is the output of Reproject: the warped image, the plate
// georeference it is aligned to, the pixel transform that produced it, and
// the chosen level and hemisphere. BBox is the image's bounding box in the
// plate's global pixel grid at Level (Image covers exactly BBox).
type ReprojectionResult struct {
	Image      *raster.Image
	GeoRef     geodesy.GeoReference
	Transform  geodesy.GeoTransform
	Level      int
	Hemisphere Hemisphere
	BBox       geodesy.BBox
	// Density is the achieved source density the level was fitted to:
	// pixels across the full plate extent (tileSize·2^level is the native
	// density of the chosen level).
	Density float64
}
