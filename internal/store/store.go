// Package store implements the versioned tile store the plate manager reads
// and writes through. Every write creates a new immutable version keyed by a
// transaction id; reads are either exact (the version written at precisely
// that id) or latest-at-or-before (snapshot semantics).
//
// Tiles live in memory until the estimated footprint crosses a configurable
// limit, at which point all in-memory pixel data is flushed to an append-only
// temp file as snappy-compressed float32 planes. A small in-memory index maps
// each version to its (offset, length) in the file.
package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/pspoerri/platepyramid/internal/raster"
)

// ErrTileNotFound reports that no version of a tile is visible at the
// requested transaction. It is part of the read protocol, not an anomaly:
// sparse pyramids simply have no tile at most addresses.
var ErrTileNotFound = errors.New("store: tile not found")

// TransactionID is an opaque, totally ordered version token.
type TransactionID uint64

// Address identifies one tile in the pyramid.
type Address struct {
	Col, Row, Level int
}

// diskEntry records where a spilled version lives in the temp file.
type diskEntry struct {
	offset int64
	length int32
}

// version is one immutable write of a tile. img is non-nil while the pixels
// are in memory; disk is set once spilled.
type version struct {
	tx   TransactionID
	img  *raster.Image
	disk diskEntry
}

// Config configures a Store.
type Config struct {
	// TileSize is the fixed edge length of every tile in the pyramid.
	TileSize int
	// Channels is the per-pixel channel count of every tile (1 or 3).
	Channels int
	// TempDir is the directory for spill files. Defaults to the OS temp dir.
	TempDir string
	// MemoryLimitBytes is the in-memory footprint at which tiles are spilled
	// to disk. 0 disables spilling.
	MemoryLimitBytes int64
}

// Store is a concurrent-safe versioned tile store.
type Store struct {
	mu       sync.RWMutex
	versions map[Address][]version // each slice sorted by tx ascending
	tileSize int
	channels int

	file     *os.File
	fileOff  int64
	dir      string
	memBytes int64
	memLimit int64
}

// New creates a store. TileSize and Channels are fixed for the store's
// lifetime.
func New(cfg Config) (*Store, error) {
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("store: invalid tile size %d", cfg.TileSize)
	}
	if cfg.Channels != 1 && cfg.Channels != 3 {
		return nil, fmt.Errorf("store: unsupported channel count %d", cfg.Channels)
	}
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{
		versions: make(map[Address][]version),
		tileSize: cfg.TileSize,
		channels: cfg.Channels,
		dir:      dir,
		memLimit: cfg.MemoryLimitBytes,
	}, nil
}

// DefaultTileSize returns the fixed tile edge length.
func (s *Store) DefaultTileSize() int { return s.tileSize }

// Channels returns the fixed per-pixel channel count.
func (s *Store) Channels() int { return s.channels }

// compareTx orders versions by transaction id.
func compareTx(v version, tx TransactionID) int {
	switch {
	case v.tx < tx:
		return -1
	case v.tx > tx:
		return 1
	default:
		return 0
	}
}

// Read returns the tile at (col, row, level) visible at tx. With exact set,
// only a version written at precisely tx is visible; otherwise the newest
// version at or before tx is returned. The returned image is a copy — the
// stored version is immutable.
func (s *Store) Read(col, row, level int, tx TransactionID, exact bool) (*raster.Image, error) {
	addr := Address{Col: col, Row: row, Level: level}

	s.mu.RLock()
	vs := s.versions[addr]
	idx, found := slices.BinarySearchFunc(vs, tx, compareTx)
	var v version
	switch {
	case found:
		v = vs[idx]
	case exact:
		s.mu.RUnlock()
		return nil, ErrTileNotFound
	case idx == 0:
		s.mu.RUnlock()
		return nil, ErrTileNotFound
	default:
		v = vs[idx-1] // newest version before tx
	}
	img := v.img
	disk := v.disk
	f := s.file
	s.mu.RUnlock()

	if img != nil {
		return img.Clone(), nil
	}
	return s.readSpilled(f, disk)
}

// WriteUpdate stores img as a new version of (col, row, level) at tx. The
// image is copied; the caller keeps ownership of img. Writing the same
// address and transaction twice replaces the version with identical
// visibility (regeneration is idempotent).
func (s *Store) WriteUpdate(img *raster.Image, col, row, level int, tx TransactionID) error {
	if img.W != s.tileSize || img.H != s.tileSize {
		return fmt.Errorf("store: tile %dx%d does not match store tile size %d", img.W, img.H, s.tileSize)
	}
	if img.Channels != s.channels {
		return fmt.Errorf("store: tile has %d channels, store holds %d", img.Channels, s.channels)
	}
	addr := Address{Col: col, Row: row, Level: level}
	v := version{tx: tx, img: img.Clone()}

	s.mu.Lock()
	vs := s.versions[addr]
	idx, found := slices.BinarySearchFunc(vs, tx, compareTx)
	if found {
		if old := vs[idx].img; old != nil {
			s.memBytes -= tileBytes(old)
		}
		vs[idx] = v
	} else {
		vs = slices.Insert(vs, idx, v)
	}
	s.versions[addr] = vs
	s.memBytes += tileBytes(v.img)

	var flushErr error
	if s.memLimit > 0 && s.memBytes > s.memLimit {
		flushErr = s.flushLocked()
	}
	s.mu.Unlock()
	return flushErr
}

// TileCount returns the number of distinct tile addresses with at least one
// version.
func (s *Store) TileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions)
}

// Addresses returns every address with at least one version at level.
func (s *Store) Addresses(level int) []Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Address
	for addr := range s.versions {
		if addr.Level == level {
			out = append(out, addr)
		}
	}
	return out
}

// MaxLevel returns the finest level with any stored tile, or -1 when empty.
func (s *Store) MaxLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := -1
	for addr := range s.versions {
		if addr.Level > max {
			max = addr.Level
		}
	}
	return max
}

// Close removes the spill file, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	s.file = nil
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

func tileBytes(img *raster.Image) int64 {
	return int64(len(img.Pix)+len(img.Alpha)) * 4
}
