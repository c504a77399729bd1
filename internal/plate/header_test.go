package plate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHeaderFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plate.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadHeader(t *testing.T) {
	path := writeHeaderFile(t, `{
		"name": "arctic",
		"projection": "polarstereographic",
		"tile_size": 256,
		"channels": 1,
		"datum": {"name": "WGS84", "semi_major_axis": 6378137},
		"creator": "someone else's tool"
	}`)

	h, err := LoadHeader(path)
	require.NoError(t, err, "unknown keys must be tolerated")
	assert.Equal(t, "arctic", h.Name)
	assert.Equal(t, 256, h.TileSize)
	assert.InEpsilon(t, 6378137.0, h.Datum.SemiMajorAxis, 1e-12)

	proj, err := h.ProjectionKind()
	require.NoError(t, err)
	assert.Equal(t, PolarStereographic, proj)
}

func TestLoadHeaderRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			"unknown projection",
			`{"projection": "mercator", "tile_size": 256, "channels": 1,
			  "datum": {"semi_major_axis": 6378137}}`,
		},
		{
			"tile size not a power of two",
			`{"projection": "platecarree", "tile_size": 100, "channels": 1,
			  "datum": {"semi_major_axis": 6378137}}`,
		},
		{
			"unsupported channel count",
			`{"projection": "platecarree", "tile_size": 256, "channels": 4,
			  "datum": {"semi_major_axis": 6378137}}`,
		},
		{
			"missing datum radius",
			`{"projection": "platecarree", "tile_size": 256, "channels": 1,
			  "datum": {"name": "WGS84"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHeader(writeHeaderFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestHeaderSaveLoadRoundTrip(t *testing.T) {
	h := &Header{
		Name:       "antarctic",
		Projection: "polarstereographic",
		TileSize:   512,
		Channels:   3,
		Datum:      HeaderDatum{Name: "WGS84", SemiMajorAxis: 6378137},
	}
	path := filepath.Join(t.TempDir(), "plate.json")
	require.NoError(t, h.Save(path))

	got, err := LoadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderSaveRejectsInvalid(t *testing.T) {
	h := &Header{
		Projection: "polarstereographic",
		TileSize:   48, // not a power of two
		Channels:   1,
		Datum:      HeaderDatum{SemiMajorAxis: 6378137},
	}
	assert.Error(t, h.Save(filepath.Join(t.TempDir(), "plate.json")))
}
