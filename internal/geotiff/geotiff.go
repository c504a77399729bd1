// Package geotiff reads georeferenced TIFF rasters into the plate pixel
// model: float32 samples plus a validity plane, and a geodesy.GeoReference
// built from the embedded GeoTIFF keys. Classic and BigTIFF layouts, tiled
// and stripped storage, and LZW/deflate compression are supported; overview
// directories are ignored because the plate warp always resamples the full
// resolution raster itself.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/raster"
)

// GeoTIFF key ids.
const (
	gkModelType    = 1024
	gkRasterType   = 1025
	gkGeographicCS = 2048
	gkProjectedCS  = 3072
)

// rasterPixelIsPoint marks rasters whose tiepoint refers to pixel centers
// rather than the pixel area's outer corner.
const rasterPixelIsPoint = 2

// Reader is an open GeoTIFF. The file is memory-mapped read-only, so a Reader
// is safe for concurrent block decodes.
type Reader struct {
	data []byte
	bo   binary.ByteOrder
	dir  directory
	path string
}

// Open memory-maps path and parses its first image directory.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geotiff: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("geotiff: %w", err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("geotiff: %s is empty", path)
	}

	data, err := mmapFile(f.Fd(), int(fi.Size()))
	if err != nil {
		return nil, fmt.Errorf("geotiff: mapping %s: %w", path, err)
	}

	dir, bo, err := parseDirectory(bytes.NewReader(data))
	if err != nil {
		munmapFile(data)
		return nil, fmt.Errorf("geotiff: parsing %s: %w", path, err)
	}

	return &Reader{data: data, bo: bo, dir: dir, path: path}, nil
}

// Close releases the file mapping.
func (r *Reader) Close() error {
	if r.data == nil {
		return nil
	}
	err := munmapFile(r.data)
	r.data = nil
	return err
}

// Width returns the raster width in pixels.
func (r *Reader) Width() int { return r.dir.width }

// Height returns the raster height in pixels.
func (r *Reader) Height() int { return r.dir.height }

// Channels returns the channel count Image will produce: one for single-band
// rasters, three for RGB and RGBA.
func (r *Reader) Channels() (int, error) {
	switch r.dir.samplesPerPixel {
	case 1:
		return 1, nil
	case 3, 4:
		return 3, nil
	default:
		return 0, fmt.Errorf("geotiff: %d samples per pixel not supported", r.dir.samplesPerPixel)
	}
}

// Image decodes the full raster. Single-band rasters come out as one channel;
// RGB and RGBA as three. Pixels equal to the GDAL nodata value (and RGBA
// pixels with zero alpha) are marked invalid.
func (r *Reader) Image() (*raster.Image, error) {
	d := &r.dir

	channels, err := r.Channels()
	if err != nil {
		return nil, err
	}
	switch d.bitsPerSample {
	case 8, 16, 32:
	default:
		return nil, fmt.Errorf("geotiff: %d bits per sample not supported", d.bitsPerSample)
	}

	var noData float64
	hasNoData := false
	if d.noData != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(d.noData), 64)
		if err == nil {
			noData = v
			hasNoData = true
		}
	}

	img := raster.New(d.width, d.height, channels)
	bw, bh, across, down := d.blockGrid()
	bytesPerSample := d.bitsPerSample / 8
	rowBytes := bw * d.samplesPerPixel * bytesPerSample

	sample := make([]float64, d.samplesPerPixel)
	for by := 0; by < down; by++ {
		for bx := 0; bx < across; bx++ {
			raw, err := r.blockData(by*across + bx)
			if err != nil {
				return nil, err
			}
			if d.predictor == 2 {
				undoHorizontalPredictor(raw, bw, d.samplesPerPixel, d.bitsPerSample, r.bo)
			}

			x0, y0 := bx*bw, by*bh
			for y := 0; y < bh && y0+y < d.height; y++ {
				row := raw[y*rowBytes:]
				for x := 0; x < bw && x0+x < d.width; x++ {
					off := x * d.samplesPerPixel * bytesPerSample
					if off+d.samplesPerPixel*bytesPerSample > len(row) {
						return nil, fmt.Errorf("geotiff: block %d/%d is truncated", bx, by)
					}
					for s := 0; s < d.samplesPerPixel; s++ {
						sample[s] = r.sampleAt(row, off+s*bytesPerSample)
					}

					valid := true
					if hasNoData && sample[0] == noData {
						valid = false
					}
					if d.samplesPerPixel == 4 && sample[3] == 0 {
						valid = false
					}
					if !valid {
						continue
					}
					px, py := x0+x, y0+y
					for c := 0; c < channels; c++ {
						img.SetSample(px, py, c, float32(sample[c]))
					}
					img.SetAlpha(px, py, 1)
				}
			}
		}
	}
	return img, nil
}

// sampleAt decodes one sample value at byte offset off.
func (r *Reader) sampleAt(row []byte, off int) float64 {
	d := &r.dir
	switch d.bitsPerSample {
	case 8:
		if d.sampleFormat == 2 {
			return float64(int8(row[off]))
		}
		return float64(row[off])
	case 16:
		v := r.bo.Uint16(row[off:])
		if d.sampleFormat == 2 {
			return float64(int16(v))
		}
		return float64(v)
	default: // 32
		v := r.bo.Uint32(row[off:])
		switch d.sampleFormat {
		case 2:
			return float64(int32(v))
		case 3:
			return float64(math.Float32frombits(v))
		default:
			return float64(v)
		}
	}
}

// blockData returns the decompressed bytes of block idx.
func (r *Reader) blockData(idx int) ([]byte, error) {
	d := &r.dir
	if idx >= len(d.offsets) {
		return nil, fmt.Errorf("geotiff: block %d out of range", idx)
	}
	off, n := d.offsets[idx], d.byteCounts[idx]
	end := off + n
	if end > uint64(len(r.data)) {
		return nil, fmt.Errorf("geotiff: block %d [%d:%d] exceeds file size %d", idx, off, end, len(r.data))
	}
	src := r.data[off:end]

	switch d.compression {
	case 1:
		// Copied because the predictor pass mutates in place.
		return append([]byte(nil), src...), nil
	case 5:
		return lzwDecode(src)
	case 8, 32946:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("geotiff: block %d: %w", idx, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("geotiff: block %d: %w", idx, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("geotiff: compression %d not supported", d.compression)
	}
}

// undoHorizontalPredictor reverses TIFF predictor 2 (horizontal differencing)
// in place, row by row.
func undoHorizontalPredictor(data []byte, width, spp, bits int, bo binary.ByteOrder) {
	switch bits {
	case 8:
		rowBytes := width * spp
		for r := 0; r+rowBytes <= len(data); r += rowBytes {
			row := data[r : r+rowBytes]
			for i := spp; i < len(row); i++ {
				row[i] += row[i-spp]
			}
		}
	case 16:
		rowBytes := width * spp * 2
		for r := 0; r+rowBytes <= len(data); r += rowBytes {
			row := data[r : r+rowBytes]
			for i := spp * 2; i+1 < len(row); i += 2 {
				v := bo.Uint16(row[i:]) + bo.Uint16(row[i-spp*2:])
				bo.PutUint16(row[i:], v)
			}
		}
	}
}

// GeoReference builds the raster's georeference from the embedded pixel
// scale, tiepoint and GeoTIFF keys. The projection set is closed: WGS84
// lon/lat (EPSG 4326), web mercator (3857) and the common polar
// stereographic grids (3413 north; 3031 and 3976 south). The polar grids use
// the spherical form on the datum sphere, with the scale factor matching the
// grid's standard parallel.
func (r *Reader) GeoReference(datum geodesy.Datum) (geodesy.GeoReference, error) {
	d := &r.dir
	var g geodesy.GeoReference
	if len(d.pixelScale) < 2 || len(d.tiepoint) < 6 {
		return g, fmt.Errorf("geotiff: %s has no pixel scale/tiepoint, not georeferenced", r.path)
	}

	sx, sy := d.pixelScale[0], d.pixelScale[1]
	if sx <= 0 || sy <= 0 {
		return g, fmt.Errorf("geotiff: degenerate pixel scale %g x %g", sx, sy)
	}
	// The tiepoint maps raster position (i,j) to model position (x,y).
	originX := d.tiepoint[3] - d.tiepoint[0]*sx
	originY := d.tiepoint[4] + d.tiepoint[1]*sy
	if geoKey(d.geoKeys, gkRasterType) == rasterPixelIsPoint {
		originX -= sx / 2
		originY += sy / 2
	}

	g = geodesy.NewGeoReference(datum)
	epsg := geoKey(d.geoKeys, gkProjectedCS)
	if epsg == 0 {
		epsg = geoKey(d.geoKeys, gkGeographicCS)
	}
	switch epsg {
	case 4326:
		g.SetGeographic()
	case 3857:
		g.SetWebMercator()
	case 3413: // NSIDC sea ice polar stereographic north, lon0 -45, lat_ts 70
		g.SetStereographic(90, -45, stereoScaleAt(70), 0, 0)
	case 3031: // antarctic polar stereographic, lat_ts -71
		g.SetStereographic(-90, 0, stereoScaleAt(71), 0, 0)
	case 3976: // NSIDC sea ice polar stereographic south, lat_ts -70
		g.SetStereographic(-90, 0, stereoScaleAt(70), 0, 0)
	default:
		return g, fmt.Errorf("geotiff: unsupported coordinate system EPSG:%d", epsg)
	}

	tr := geodesy.Identity()
	tr[0][0] = sx
	tr[1][1] = -sy
	tr[0][2] = originX
	tr[1][2] = originY
	g.SetTransform(tr)
	return g, nil
}

// stereoScaleAt returns the polar scale factor of a spherical stereographic
// projection that is true at the given standard parallel.
func stereoScaleAt(latTS float64) float64 {
	return (1 + math.Sin(latTS*math.Pi/180)) / 2
}

// geoKey looks up a key in the GeoTIFF key directory. Only keys with inline
// short values are considered, which covers the CS and raster type keys.
func geoKey(keys []uint16, id uint16) int {
	if len(keys) < 4 {
		return 0
	}
	n := int(keys[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		if keys[base] == id && keys[base+1] == 0 {
			return int(keys[base+3])
		}
	}
	return 0
}

// Load opens path and returns its decoded raster and georeference.
func Load(path string, datum geodesy.Datum) (*raster.Image, geodesy.GeoReference, error) {
	r, err := Open(path)
	if err != nil {
		return nil, geodesy.GeoReference{}, err
	}
	defer r.Close()

	georef, err := r.GeoReference(datum)
	if err != nil {
		return nil, geodesy.GeoReference{}, err
	}
	img, err := r.Image()
	if err != nil {
		return nil, geodesy.GeoReference{}, err
	}
	return img, georef, nil
}
