package plate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"

	"github.com/pspoerri/platepyramid/internal/geodesy"
)

// HeaderDatum is the datum block of a plate header.
type HeaderDatum struct {
	Name          string  `json:"name"`
	SemiMajorAxis float64 `json:"semi_major_axis" validate:"required,gt=0"`
}

// Header is the persisted description of a plate pyramid: everything needed
// to reopen it with the exact geometry it was created with. It lives as
// plate.json next to the pyramid data. Unknown keys are tolerated so newer
// writers can add fields without breaking older readers.
type Header struct {
	Name       string      `json:"name"`
	Projection string      `json:"projection" validate:"required,oneof=polarstereographic platecarree"`
	TileSize   int         `json:"tile_size" validate:"required,gte=16"`
	Channels   int         `json:"channels" validate:"required,oneof=1 3"`
	Datum      HeaderDatum `json:"datum" validate:"required"`
}

// Validate checks the header fields, including constraints the struct tags
// cannot express (tile size must be a power of two: the quadtree addressing
// assumes it).
func (h *Header) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(h); err != nil {
		return fmt.Errorf("plate: invalid header: %w", err)
	}
	if h.TileSize&(h.TileSize-1) != 0 {
		return fmt.Errorf("plate: invalid header: tile size %d is not a power of two", h.TileSize)
	}
	return nil
}

// LoadHeader reads and validates a plate header from path.
func LoadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plate: reading header: %w", err)
	}
	h := &Header{}
	if _, err := marshmallow.Unmarshal(data, h, marshmallow.WithExcludeKnownFieldsFromMap(true)); err != nil {
		return nil, fmt.Errorf("plate: parsing header: %w", err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Save validates and writes the header to path.
func (h *Header) Save(path string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("plate: encoding header: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("plate: writing header: %w", err)
	}
	return nil
}

// ProjectionKind returns the header's projection as the closed enum.
func (h *Header) ProjectionKind() (Projection, error) {
	return ParseProjection(h.Projection)
}

// GeodesyDatum returns the header's datum.
func (h *Header) GeodesyDatum() geodesy.Datum {
	return geodesy.Datum{Name: h.Datum.Name, SemiMajorAxis: h.Datum.SemiMajorAxis}
}
