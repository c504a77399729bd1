package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TIFF tags the reader cares about, typed to match the directory's field
// map key. Everything else is skipped.
const (
	tagImageWidth      uint16 = 256
	tagImageLength     uint16 = 257
	tagBitsPerSample   uint16 = 258
	tagCompression     uint16 = 259
	tagPhotometric     uint16 = 262
	tagStripOffsets    uint16 = 273
	tagSamplesPerPixel uint16 = 277
	tagRowsPerStrip    uint16 = 278
	tagStripByteCounts uint16 = 279
	tagPlanarConfig    uint16 = 284
	tagPredictor       uint16 = 317
	tagTileWidth       uint16 = 322
	tagTileLength      uint16 = 323
	tagTileOffsets     uint16 = 324
	tagTileByteCounts  uint16 = 325
	tagSampleFormat    uint16 = 339
	tagPixelScale      uint16 = 33550
	tagTiepoint        uint16 = 33922
	tagGeoKeys         uint16 = 34735
	tagGeoDoubles      uint16 = 34736
	tagGeoASCII        uint16 = 34737
	tagNoData          uint16 = 42113
)

// TIFF field types.
const (
	ftByte     = 1
	ftASCII    = 2
	ftShort    = 3
	ftLong     = 4
	ftRational = 5
	ftSByte    = 6
	ftUndef    = 7
	ftSShort   = 8
	ftSLong    = 9
	ftFloat    = 11
	ftDouble   = 12
	ftLong8    = 16
	ftSLong8   = 17
	ftIFD8     = 18
)

// directory is the first image file directory of a GeoTIFF, reduced to the
// fields the ingest path needs. Overview directories are not read: the plate
// warp always samples the full-resolution raster.
type directory struct {
	width, height   int
	tileWidth       int
	tileHeight      int
	rowsPerStrip    int
	bitsPerSample   int
	samplesPerPixel int
	sampleFormat    uint16
	compression     uint16
	photometric     uint16
	planarConfig    uint16
	predictor       uint16

	offsets    []uint64 // tile or strip offsets, row-major
	byteCounts []uint64

	pixelScale []float64
	tiepoint   []float64
	geoKeys    []uint16
	noData     string
}

// tiled reports whether the raster is stored as tiles rather than strips.
func (d *directory) tiled() bool { return d.tileWidth > 0 && d.tileHeight > 0 }

// blockGrid returns the block dimensions and counts, treating each strip as a
// full-width block.
func (d *directory) blockGrid() (bw, bh, across, down int) {
	if d.tiled() {
		bw, bh = d.tileWidth, d.tileHeight
	} else {
		bw = d.width
		bh = d.rowsPerStrip
		if bh <= 0 || bh > d.height {
			bh = d.height
		}
	}
	across = (d.width + bw - 1) / bw
	down = (d.height + bh - 1) / bh
	return
}

// field is one raw directory entry with its value bytes already resolved.
type field struct {
	ftype uint16
	count uint64
	value []byte
}

// parseDirectory reads the TIFF header and the first IFD. Both classic and
// BigTIFF layouts are handled; the byte order comes from the header.
func parseDirectory(r io.ReadSeeker) (directory, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return directory{}, nil, fmt.Errorf("reading header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return directory{}, nil, fmt.Errorf("not a TIFF file (byte order %q)", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	big := magic == 43
	if magic != 42 && !big {
		return directory{}, nil, fmt.Errorf("bad TIFF magic %d", magic)
	}

	var off uint64
	if big {
		var rest [8]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return directory{}, nil, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		off = bo.Uint64(rest[:])
	} else {
		off = uint64(bo.Uint32(header[4:8]))
	}
	if off == 0 {
		return directory{}, nil, fmt.Errorf("no image directory")
	}

	fields, err := readFields(r, bo, off, big)
	if err != nil {
		return directory{}, nil, err
	}
	d, err := buildDirectory(fields, bo)
	if err != nil {
		return directory{}, nil, err
	}
	return d, bo, nil
}

// readFields reads every entry of the IFD at off into a tag-keyed map,
// resolving values stored outside the entry.
func readFields(r io.ReadSeeker, bo binary.ByteOrder, off uint64, big bool) (map[uint16]field, error) {
	if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}

	var n uint64
	entrySize := 12
	inline := 4
	if big {
		entrySize, inline = 20, 8
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		n = bo.Uint64(buf[:])
	} else {
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		n = uint64(bo.Uint16(buf[:]))
	}

	raw := make([]byte, n*uint64(entrySize))
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	fields := make(map[uint16]field, n)
	for i := uint64(0); i < n; i++ {
		e := raw[i*uint64(entrySize):]
		tag := bo.Uint16(e[0:2])
		f := field{ftype: bo.Uint16(e[2:4])}
		if big {
			f.count = bo.Uint64(e[4:12])
			f.value = append([]byte(nil), e[12:20]...)
		} else {
			f.count = uint64(bo.Uint32(e[4:8]))
			f.value = append([]byte(nil), e[8:12]...)
		}

		size := int(f.count) * fieldTypeSize(f.ftype)
		if size > inline {
			var dataOff uint64
			if big {
				dataOff = bo.Uint64(f.value)
			} else {
				dataOff = uint64(bo.Uint32(f.value))
			}
			if _, err := r.Seek(int64(dataOff), io.SeekStart); err != nil {
				return nil, err
			}
			f.value = make([]byte, size)
			if _, err := io.ReadFull(r, f.value); err != nil {
				return nil, fmt.Errorf("reading value of tag %d: %w", tag, err)
			}
		}
		fields[tag] = f
	}
	return fields, nil
}

func fieldTypeSize(ft uint16) int {
	switch ft {
	case ftByte, ftASCII, ftSByte, ftUndef:
		return 1
	case ftShort, ftSShort:
		return 2
	case ftLong, ftSLong, ftFloat:
		return 4
	case ftRational, ftDouble, ftLong8, ftSLong8, ftIFD8:
		return 8
	default:
		return 1
	}
}

func buildDirectory(fields map[uint16]field, bo binary.ByteOrder) (directory, error) {
	d := directory{
		samplesPerPixel: 1,
		sampleFormat:    1,
		planarConfig:    1,
		compression:     1,
		predictor:       1,
		bitsPerSample:   1,
	}

	uintVal := func(tag uint16) int {
		f, ok := fields[tag]
		if !ok {
			return 0
		}
		return int(readUint(f, 0, bo))
	}

	d.width = uintVal(tagImageWidth)
	d.height = uintVal(tagImageLength)
	d.tileWidth = uintVal(tagTileWidth)
	d.tileHeight = uintVal(tagTileLength)
	d.rowsPerStrip = uintVal(tagRowsPerStrip)
	d.samplesPerPixel = max(uintVal(tagSamplesPerPixel), 1)
	if f, ok := fields[tagBitsPerSample]; ok {
		d.bitsPerSample = int(readUint(f, 0, bo))
	}
	if f, ok := fields[tagSampleFormat]; ok {
		d.sampleFormat = uint16(readUint(f, 0, bo))
	}
	if f, ok := fields[tagCompression]; ok {
		d.compression = uint16(readUint(f, 0, bo))
	}
	if f, ok := fields[tagPhotometric]; ok {
		d.photometric = uint16(readUint(f, 0, bo))
	}
	if f, ok := fields[tagPlanarConfig]; ok {
		d.planarConfig = uint16(readUint(f, 0, bo))
	}
	if f, ok := fields[tagPredictor]; ok {
		d.predictor = uint16(readUint(f, 0, bo))
	}

	offTag, cntTag := tagStripOffsets, tagStripByteCounts
	if d.tiled() {
		offTag, cntTag = tagTileOffsets, tagTileByteCounts
	}
	if f, ok := fields[offTag]; ok {
		d.offsets = readUintSlice(f, bo)
	}
	if f, ok := fields[cntTag]; ok {
		d.byteCounts = readUintSlice(f, bo)
	}

	if f, ok := fields[tagPixelScale]; ok {
		d.pixelScale = readFloatSlice(f, bo)
	}
	if f, ok := fields[tagTiepoint]; ok {
		d.tiepoint = readFloatSlice(f, bo)
	}
	if f, ok := fields[tagGeoKeys]; ok {
		d.geoKeys = readShortSlice(f, bo)
	}
	if f, ok := fields[tagNoData]; ok {
		d.noData = cString(f.value)
	}

	if d.width <= 0 || d.height <= 0 {
		return d, fmt.Errorf("missing image dimensions")
	}
	if len(d.offsets) == 0 || len(d.offsets) != len(d.byteCounts) {
		return d, fmt.Errorf("missing or inconsistent tile/strip layout")
	}
	if d.planarConfig != 1 {
		return d, fmt.Errorf("planar sample layout is not supported")
	}
	return d, nil
}

// readUint reads the i-th element of an unsigned integer field.
func readUint(f field, i int, bo binary.ByteOrder) uint64 {
	switch f.ftype {
	case ftShort:
		return uint64(bo.Uint16(f.value[i*2:]))
	case ftLong:
		return uint64(bo.Uint32(f.value[i*4:]))
	case ftLong8:
		return bo.Uint64(f.value[i*8:])
	default:
		return uint64(f.value[i])
	}
}

func readUintSlice(f field, bo binary.ByteOrder) []uint64 {
	out := make([]uint64, f.count)
	for i := range out {
		out[i] = readUint(f, i, bo)
	}
	return out
}

func readShortSlice(f field, bo binary.ByteOrder) []uint16 {
	out := make([]uint16, f.count)
	for i := range out {
		out[i] = bo.Uint16(f.value[i*2:])
	}
	return out
}

func readFloatSlice(f field, bo binary.ByteOrder) []float64 {
	out := make([]float64, f.count)
	for i := range out {
		switch f.ftype {
		case ftDouble:
			out[i] = math.Float64frombits(bo.Uint64(f.value[i*8:]))
		case ftFloat:
			out[i] = float64(math.Float32frombits(bo.Uint32(f.value[i*4:])))
		}
	}
	return out
}

// cString trims the NUL terminator of an ASCII field value.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
