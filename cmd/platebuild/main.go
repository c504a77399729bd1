// Command platebuild ingests projected imagery into a quadtree plate
// pyramid: each input is reprojected into the plate's coordinate system at
// its best-fit level, leaf tiles are written, ancestor tiles are regenerated
// bottom-up, and the resulting pyramid is exported as encoded tiles under
// target/<level>/<col>/<row>.<ext> alongside a plate.json header.
package main

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/muesli/reflow/truncate"
	"github.com/urfave/cli/v2"

	"github.com/pspoerri/platepyramid/internal/encode"
	"github.com/pspoerri/platepyramid/internal/geodesy"
	"github.com/pspoerri/platepyramid/internal/geotiff"
	"github.com/pspoerri/platepyramid/internal/plate"
	"github.com/pspoerri/platepyramid/internal/raster"
	"github.com/pspoerri/platepyramid/internal/store"
)

const SOURCE string = `source`
const TARGET string = `target`
const INPUTPROJECTION string = `inputProjection`
const PLATEPROJECTION string = `plateProjection`
const TILESIZE string = `tileSize`
const CHANNELS string = `channels`
const FORMAT string = `format`
const QUALITY string = `quality`
const TRANSACTION string = `transaction`
const PREBLUR string = `preblur`
const CONCURRENCY string = `concurrency`
const MEMLIMIT string = `memLimitMb`
const VERBOSE string = `verbose`

func main() {
	app := cli.NewApp()
	app.Name = "platebuild"
	app.Usage = "Builds quadtree plate pyramids from projected imagery"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:     SOURCE,
			Aliases:  []string{"s"},
			Usage:    "Source image: GeoTIFF, or PNG/JPEG with a world file sidecar (.wld/.pgw/.tfw). Repeatable.",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(SOURCE)},
		},
		&cli.StringFlag{
			Name:     TARGET,
			Aliases:  []string{"t"},
			Usage:    "Target directory for the pyramid (plate.json + <level>/<col>/<row> tiles)",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(TARGET)},
		},
		&cli.StringFlag{
			Name:    INPUTPROJECTION,
			Aliases: []string{"i"},
			Usage:   "Projection of world-file sources: geographic, stereographic-north, stereographic-south, webmercator. GeoTIFF sources carry their own.",
			Value:   "geographic",
			EnvVars: []string{strcase.ToScreamingSnake(INPUTPROJECTION)},
		},
		&cli.StringFlag{
			Name:    PLATEPROJECTION,
			Aliases: []string{"p"},
			Usage:   "Pyramid geometry: polarstereographic or platecarree. Fixed at plate creation.",
			Value:   "polarstereographic",
			EnvVars: []string{strcase.ToScreamingSnake(PLATEPROJECTION)},
		},
		&cli.IntFlag{
			Name:    TILESIZE,
			Usage:   "Tile edge length in pixels (power of two). Fixed at plate creation.",
			Value:   256,
			EnvVars: []string{strcase.ToScreamingSnake(TILESIZE)},
		},
		&cli.IntFlag{
			Name:    CHANNELS,
			Usage:   "Pixel channels per tile: 1 (gray) or 3 (RGB); 0 derives it from the first source. Fixed at plate creation.",
			Value:   0,
			EnvVars: []string{strcase.ToScreamingSnake(CHANNELS)},
		},
		&cli.StringFlag{
			Name:    FORMAT,
			Aliases: []string{"f"},
			Usage:   "Exported tile encoding: png or webp",
			Value:   "png",
			EnvVars: []string{strcase.ToScreamingSnake(FORMAT)},
		},
		&cli.IntFlag{
			Name:    QUALITY,
			Usage:   "WebP quality 1-100",
			Value:   85,
			EnvVars: []string{strcase.ToScreamingSnake(QUALITY)},
		},
		&cli.Uint64Flag{
			Name:    TRANSACTION,
			Usage:   "Transaction id all writes of this run are made under",
			Value:   1,
			EnvVars: []string{strcase.ToScreamingSnake(TRANSACTION)},
		},
		&cli.BoolFlag{
			Name:    PREBLUR,
			Usage:   "Apply the 2-tap averaging filter before each mipmap decimation (antialiased)",
			Value:   true,
			EnvVars: []string{strcase.ToScreamingSnake(PREBLUR)},
		},
		&cli.IntFlag{
			Name:    CONCURRENCY,
			Aliases: []string{"c"},
			Usage:   "Workers per pyramid level during mipmap regeneration",
			Value:   runtime.NumCPU(),
			EnvVars: []string{strcase.ToScreamingSnake(CONCURRENCY)},
		},
		&cli.Int64Flag{
			Name:    MEMLIMIT,
			Usage:   "Tile store memory limit in MB before disk spilling (-1 = auto-detect from RAM, 0 = never spill)",
			Value:   -1,
			EnvVars: []string{strcase.ToScreamingSnake(MEMLIMIT)},
		},
		&cli.BoolFlag{
			Name:    VERBOSE,
			Aliases: []string{"v"},
			Usage:   "Verbose diagnostics (chosen levels, hemispheres, bboxes)",
			EnvVars: []string{strcase.ToScreamingSnake(VERBOSE)},
		},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	target := c.String(TARGET)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	header, err := loadOrCreateHeader(c, filepath.Join(target, "plate.json"))
	if err != nil {
		return err
	}
	proj, err := header.ProjectionKind()
	if err != nil {
		return err
	}

	memLimit := c.Int64(MEMLIMIT) << 20
	if c.Int64(MEMLIMIT) < 0 {
		memLimit = store.AutoMemoryLimit(store.DefaultMemoryPressure, c.Bool(VERBOSE))
	}
	st, err := store.New(store.Config{
		TileSize:         header.TileSize,
		Channels:         header.Channels,
		MemoryLimitBytes: memLimit,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := &plate.Manager{
		Proj:    proj,
		Datum:   header.GeodesyDatum(),
		Store:   st,
		Verbose: c.Bool(VERBOSE),
	}
	opts := plate.InsertOptions{
		Transaction: store.TransactionID(c.Uint64(TRANSACTION)),
		Preblur:     c.Bool(PREBLUR),
		Concurrency: c.Int(CONCURRENCY),
	}

	// Ingest every source under the single transaction, collecting the leaf
	// tiles; ancestors are regenerated once afterwards so siblings from
	// different images composite into shared parents.
	var leaves []store.Address
	for _, src := range c.StringSlice(SOURCE) {
		imgLeaves, level, err := ingest(mgr, src, c.String(INPUTPROJECTION), opts.Transaction)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", src, err)
		}
		log.Printf("%s: %d leaf tiles at level %d", truncate.String(src, 60), len(imgLeaves), level)
		leaves = append(leaves, imgLeaves...)
	}

	regenerated, err := mgr.RegenerateAncestors(leaves, opts)
	if err != nil {
		return err
	}
	log.Printf("regenerated %d ancestor tiles across %d levels", regenerated, st.MaxLevel()+1)

	enc, err := encode.NewEncoder(c.String(FORMAT), c.Int(QUALITY))
	if err != nil {
		return err
	}
	exported, err := exportTiles(st, enc, target, opts.Transaction)
	if err != nil {
		return err
	}
	log.Printf("exported %d tiles to %s", exported, target)
	return nil
}

// loadOrCreateHeader opens an existing plate header, verifying it matches the
// requested geometry, or creates one when the plate is new. The geometry of
// an existing plate always wins over flags: tiles already on disk were cut to it.
func loadOrCreateHeader(c *cli.Context, path string) (*plate.Header, error) {
	if _, err := os.Stat(path); err == nil {
		header, err := plate.LoadHeader(path)
		if err != nil {
			return nil, err
		}
		if header.Projection != c.String(PLATEPROJECTION) && c.IsSet(PLATEPROJECTION) {
			return nil, fmt.Errorf("plate at %s is %s, cannot ingest as %s",
				path, header.Projection, c.String(PLATEPROJECTION))
		}
		if header.TileSize != c.Int(TILESIZE) && c.IsSet(TILESIZE) {
			return nil, fmt.Errorf("plate at %s has tile size %d, cannot ingest with %d",
				path, header.TileSize, c.Int(TILESIZE))
		}
		if header.Channels != c.Int(CHANNELS) && c.IsSet(CHANNELS) {
			return nil, fmt.Errorf("plate at %s has %d channels, cannot ingest with %d",
				path, header.Channels, c.Int(CHANNELS))
		}
		return header, nil
	}

	channels := c.Int(CHANNELS)
	if channels == 0 {
		first := c.StringSlice(SOURCE)[0]
		var err error
		channels, err = sourceChannels(first)
		if err != nil {
			return nil, fmt.Errorf("deriving channel count from %s: %w", first, err)
		}
	}

	header := &plate.Header{
		Name:       filepath.Base(filepath.Dir(path)),
		Projection: c.String(PLATEPROJECTION),
		TileSize:   c.Int(TILESIZE),
		Channels:   channels,
		Datum:      plate.HeaderDatum{Name: "WGS84", SemiMajorAxis: 6378137.0},
	}
	if err := header.Save(path); err != nil {
		return nil, err
	}
	return header, nil
}

// ingest decodes one source image with its georeference, reprojects it into
// the plate frame and writes its leaf tiles. GeoTIFFs carry their own
// georeference; other formats need a world file sidecar plus the projection
// flag.
func ingest(mgr *plate.Manager, src, projection string, tx store.TransactionID) ([]store.Address, int, error) {
	img, georef, err := loadSource(src, projection, mgr.Datum)
	if err != nil {
		return nil, 0, err
	}

	res, err := mgr.Reproject(img, georef)
	if err != nil {
		return nil, 0, err
	}
	leaves, err := mgr.WriteLeaves(res, tx)
	if err != nil {
		return nil, 0, err
	}
	return leaves, res.Level, nil
}

// sourceChannels inspects a source image's channel count without decoding
// its pixels, so a new plate can be sized to its first source.
func sourceChannels(src string) (int, error) {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".tif", ".tiff":
		r, err := geotiff.Open(src)
		if err != nil {
			return 0, err
		}
		defer r.Close()
		return r.Channels()
	}

	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, fmt.Errorf("decoding: %w", err)
	}
	switch cfg.ColorModel {
	case color.GrayModel, color.Gray16Model:
		return 1, nil
	}
	return 3, nil
}

// loadSource reads one source raster and its georeference.
func loadSource(src, projection string, datum geodesy.Datum) (*raster.Image, geodesy.GeoReference, error) {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".tif", ".tiff":
		return geotiff.Load(src, datum)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, geodesy.GeoReference{}, err
	}
	defer f.Close()
	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, geodesy.GeoReference{}, fmt.Errorf("decoding: %w", err)
	}

	wfPath := findWorldFile(src)
	if wfPath == "" {
		return nil, geodesy.GeoReference{}, fmt.Errorf("no world file sidecar found")
	}
	wf, err := parseWorldFile(wfPath)
	if err != nil {
		return nil, geodesy.GeoReference{}, err
	}
	georef, err := wf.toGeoReference(projection, datum)
	if err != nil {
		return nil, geodesy.GeoReference{}, err
	}

	// Keep grayscale sources single-channel so they fit 1-channel plates.
	switch decoded.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return raster.FromGray(decoded), georef, nil
	}
	return raster.FromRGBA(decoded), georef, nil
}

// exportTiles writes every tile visible at tx under target/<level>/<col>/<row>.<ext>.
func exportTiles(st *store.Store, enc encode.Encoder, target string, tx store.TransactionID) (int, error) {
	var total int64
	for level := 0; level <= st.MaxLevel(); level++ {
		total += int64(len(st.Addresses(level)))
	}
	pb := newProgressBar("export", total)
	defer pb.Finish()

	exported := 0
	for level := 0; level <= st.MaxLevel(); level++ {
		for _, addr := range st.Addresses(level) {
			img, err := st.Read(addr.Col, addr.Row, addr.Level, tx, false)
			if err != nil {
				return exported, fmt.Errorf("reading tile %d/%d@%d: %w", addr.Col, addr.Row, addr.Level, err)
			}
			data, err := enc.Encode(img)
			if err != nil {
				return exported, fmt.Errorf("encoding tile %d/%d@%d: %w", addr.Col, addr.Row, addr.Level, err)
			}
			dir := filepath.Join(target, fmt.Sprintf("%d", addr.Level), fmt.Sprintf("%d", addr.Col))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return exported, err
			}
			name := filepath.Join(dir, fmt.Sprintf("%d%s", addr.Row, enc.FileExtension()))
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return exported, err
			}
			exported++
			pb.Increment()
		}
	}
	return exported, nil
}
