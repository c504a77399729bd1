package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/golang/snappy"

	"github.com/pspoerri/platepyramid/internal/raster"
)

// flushLocked writes every in-memory version to the spill file and drops the
// pixel data from memory. Caller holds s.mu.
func (s *Store) flushLocked() error {
	if s.file == nil {
		f, err := os.CreateTemp(s.dir, "platepyramid-spill-*.bin")
		if err != nil {
			return fmt.Errorf("store: creating spill file: %w", err)
		}
		s.file = f
	}

	for addr, vs := range s.versions {
		for i := range vs {
			if vs[i].img == nil {
				continue
			}
			data := snappy.Encode(nil, encodeTile(vs[i].img))
			if _, err := s.file.WriteAt(data, s.fileOff); err != nil {
				return fmt.Errorf("store: spilling tile %v: %w", addr, err)
			}
			vs[i].disk = diskEntry{offset: s.fileOff, length: int32(len(data))}
			s.fileOff += int64(len(data))
			s.memBytes -= tileBytes(vs[i].img)
			vs[i].img = nil
		}
	}
	return nil
}

// readSpilled loads one version back from the spill file.
func (s *Store) readSpilled(f *os.File, de diskEntry) (*raster.Image, error) {
	if f == nil {
		return nil, fmt.Errorf("store: spilled tile without spill file")
	}
	buf := make([]byte, de.length)
	if _, err := f.ReadAt(buf, de.offset); err != nil {
		return nil, fmt.Errorf("store: reading spilled tile: %w", err)
	}
	raw, err := snappy.Decode(nil, buf)
	if err != nil {
		return nil, fmt.Errorf("store: decompressing spilled tile: %w", err)
	}
	img, err := decodeTile(raw, s.tileSize, s.channels)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// encodeTile serializes the float32 value and validity planes, little endian,
// values first.
func encodeTile(img *raster.Image) []byte {
	out := make([]byte, (len(img.Pix)+len(img.Alpha))*4)
	off := 0
	for _, v := range img.Pix {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += 4
	}
	for _, a := range img.Alpha {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(a))
		off += 4
	}
	return out
}

func decodeTile(raw []byte, tileSize, channels int) (*raster.Image, error) {
	img := raster.New(tileSize, tileSize, channels)
	want := (len(img.Pix) + len(img.Alpha)) * 4
	if len(raw) != want {
		return nil, fmt.Errorf("store: spilled tile is %d bytes, want %d", len(raw), want)
	}
	off := 0
	for i := range img.Pix {
		img.Pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
	}
	for i := range img.Alpha {
		img.Alpha[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
	}
	return img, nil
}
