package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pspoerri/platepyramid/internal/geodesy"
)

// worldFile holds the six parameters of an ESRI world file sidecar:
//
//	line 1: x-component of pixel size
//	line 2: rotation about the y-axis (must be 0)
//	line 3: rotation about the x-axis (must be 0)
//	line 4: y-component of pixel size (negative for north-up)
//	line 5: x-coordinate of the center of the upper-left pixel
//	line 6: y-coordinate of the center of the upper-left pixel
type worldFile struct {
	pixelSizeX float64
	pixelSizeY float64
	originX    float64
	originY    float64
}

// parseWorldFile reads a world file from path. Rotated rasters are rejected.
func parseWorldFile(path string) (*worldFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading world file %s: %w", path, err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 6 {
		return nil, fmt.Errorf("world file %s: expected 6 lines, got %d", path, len(lines))
	}

	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("world file %s line %d: %w", path, i+1, err)
		}
		vals[i] = v
	}

	if vals[1] != 0 || vals[2] != 0 {
		return nil, fmt.Errorf("world file %s: rotated rasters are not supported (rotation: %f, %f)",
			path, vals[1], vals[2])
	}

	return &worldFile{
		pixelSizeX: vals[0],
		pixelSizeY: vals[3],
		originX:    vals[4],
		originY:    vals[5],
	}, nil
}

// findWorldFile looks for a world file sidecar next to the given image path.
func findWorldFile(imagePath string) string {
	ext := filepath.Ext(imagePath)
	base := imagePath[:len(imagePath)-len(ext)]

	candidates := []string{".wld", ".pgw", ".pngw", ".tfw"}
	for _, c := range candidates {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// toGeoReference builds the input georeference: the named projection over
// datum, with the world file's affine as the pixel transform. The world file
// origin is the center of the upper-left pixel; the transform expects the
// corner, so it is shifted back half a pixel along each axis.
func (wf *worldFile) toGeoReference(projection string, datum geodesy.Datum) (geodesy.GeoReference, error) {
	g := geodesy.NewGeoReference(datum)
	switch projection {
	case "geographic":
		g.SetGeographic()
	case "stereographic-north":
		g.SetStereographic(90, 0, 1.0, 0, 0)
	case "stereographic-south":
		g.SetStereographic(-90, 0, 1.0, 0, 0)
	case "webmercator":
		g.SetWebMercator()
	default:
		return g, fmt.Errorf("unknown input projection %q (supported: geographic, stereographic-north, stereographic-south, webmercator)", projection)
	}

	t := geodesy.Identity()
	t[0][0] = wf.pixelSizeX
	t[1][1] = wf.pixelSizeY
	t[0][2] = wf.originX - wf.pixelSizeX/2
	t[1][2] = wf.originY - wf.pixelSizeY/2
	g.SetTransform(t)
	return g, nil
}
