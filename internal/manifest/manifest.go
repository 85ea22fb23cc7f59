package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"mapgen/internal/services"
)

// shapefileFieldLimit is the DBF attribute-name length limit.
const shapefileFieldLimit = 10

// ExtentReader reads the bounding box of a boundary file.
type ExtentReader interface {
	Extent(ctx context.Context, path string) (Extent, error)
}

// Field names a data column and its significance column.
type Field struct {
	Data         string
	Significance string
}

// Options describes the inputs to Build.
type Options struct {
	Dataset         string
	OutputDir       string
	BoundaryDir     string
	BoundaryPattern string
	Fields          []Field
	XRes            float64
	YRes            float64
	// MapTemplate is the render-configuration template; the generated
	// configuration is written beside it so relative includes resolve.
	MapTemplate string
	Interpolate bool
}

// FieldRecord holds every output derived for one field of one boundary.
type FieldRecord struct {
	Name                 string
	Attribute            string
	LayerName            string
	RasterPath           string
	InterpolatedPath     string
	StatisticField       string
	StatisticAttribute   string
	StatisticLayerName   string
	StatisticRasterPath  string
	StatisticPolygonPath string
	RenderPath           string
}

// DisplayRaster returns the raster the map layer should draw.
func (f FieldRecord) DisplayRaster(interpolate bool) string {
	if interpolate {
		return f.InterpolatedPath
	}
	return f.RasterPath
}

// BoundaryRecord holds the outputs and extents derived for one boundary file.
type BoundaryRecord struct {
	ID           string
	BoundaryPath string
	ClippedPath  string
	ClippedLayer string
	// SourceExtent is the extent as read from the boundary file.
	SourceExtent Extent
	// Extent is SourceExtent widened by one grid cell.
	Extent Extent
	Fields []FieldRecord
}

// MaskLayer names the map layer used to mask rasters to this boundary.
func (b BoundaryRecord) MaskLayer() string { return b.ID + "_mask" }

// OutlineLayer names the map layer drawing the boundary outline.
func (b BoundaryRecord) OutlineLayer() string { return b.ID + "_outline" }

// Manifest is the complete output plan for one run.
type Manifest struct {
	Dataset     string
	BaseDir     string
	TempDir     string
	DataDir     string
	RendersDir  string
	TempCSV     string
	Descriptor  string
	MapFile     string
	XRes        float64
	YRes        float64
	Interpolate bool
	Boundaries  []BoundaryRecord
}

// Build discovers boundaries and derives the manifest. A boundary that cannot be
// read aborts the build.
func Build(ctx context.Context, opts Options, reader ExtentReader) (*Manifest, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, errors.New("manifest: extent reader required")
	}

	files, err := Discover(opts.BoundaryDir, opts.BoundaryPattern)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Dataset:     opts.Dataset,
		BaseDir:     opts.OutputDir,
		TempDir:     filepath.Join(opts.OutputDir, "temp"),
		DataDir:     filepath.Join(opts.OutputDir, "data"),
		RendersDir:  filepath.Join(opts.OutputDir, "renders"),
		XRes:        opts.XRes,
		YRes:        opts.YRes,
		Interpolate: opts.Interpolate,
	}
	m.TempCSV = filepath.Join(m.TempDir, opts.Dataset+".csv")
	m.Descriptor = filepath.Join(m.TempDir, opts.Dataset+".vrt")
	if opts.MapTemplate != "" {
		m.MapFile = filepath.Join(filepath.Dir(opts.MapTemplate), opts.Dataset+".map")
	}

	seen := make(map[string]string, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := BoundaryID(file)
		if prev, dup := seen[id]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", id,
				fmt.Sprintf("boundary id shared by %s and %s", prev, file), nil)
		}
		seen[id] = file

		extent, err := reader.Extent(ctx, file)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", file, "read boundary extent", err)
		}
		if !extent.Valid() {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", file,
				fmt.Sprintf("invalid extent %s", extent), nil)
		}
		m.Boundaries = append(m.Boundaries, m.boundaryRecord(id, file, extent, opts.Fields))
	}
	return m, nil
}

func (m *Manifest) boundaryRecord(id, file string, extent Extent, fields []Field) BoundaryRecord {
	prefix := m.Dataset + "__" + id
	record := BoundaryRecord{
		ID:           id,
		BoundaryPath: file,
		ClippedPath:  filepath.Join(m.TempDir, prefix+".shp"),
		ClippedLayer: prefix,
		SourceExtent: extent,
		Extent:       extent.Widen(m.XRes, m.YRes),
		Fields:       make([]FieldRecord, 0, len(fields)),
	}
	for _, field := range fields {
		stem := prefix + "__" + field.Data
		record.Fields = append(record.Fields, FieldRecord{
			Name:                 field.Data,
			Attribute:            ShapefileField(field.Data),
			LayerName:            stem,
			RasterPath:           filepath.Join(m.DataDir, stem+".tif"),
			InterpolatedPath:     filepath.Join(m.DataDir, stem+"__interp.tif"),
			StatisticField:       field.Significance,
			StatisticAttribute:   ShapefileField(field.Significance),
			StatisticLayerName:   stem + "__sig",
			StatisticRasterPath:  filepath.Join(m.DataDir, stem+"__sig.tif"),
			StatisticPolygonPath: filepath.Join(m.DataDir, stem+"__sig.shp"),
			RenderPath:           filepath.Join(m.RendersDir, stem+".png"),
		})
	}
	return record
}

func (o Options) validate() error {
	var problems []string
	if strings.TrimSpace(o.Dataset) == "" {
		problems = append(problems, "dataset name required")
	}
	if strings.TrimSpace(o.OutputDir) == "" {
		problems = append(problems, "output directory required")
	}
	if len(o.Fields) == 0 {
		problems = append(problems, "at least one field required")
	}
	if o.XRes <= 0 || o.YRes <= 0 {
		problems = append(problems, "resolution must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "manifest", "", strings.Join(problems, "; "), nil)
}

// Discover lists boundary files matching pattern inside dir, sorted.
func Discover(dir, pattern string) ([]string, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = "*.shp"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "discover", "bad boundary pattern", err)
	}
	files := matches[:0]
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, match)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "discover",
			fmt.Sprintf("no boundary files match %s", filepath.Join(dir, pattern)), nil)
	}
	sort.Strings(files)
	return files, nil
}

// BoundaryID derives the boundary identifier from a file name stem.
func BoundaryID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ShapefileField returns the attribute name a column receives in a shapefile:
// the longest prefix of at most ten bytes that ends on a rune boundary.
func ShapefileField(name string) string {
	cut := 0
	for cut < len(name) {
		_, size := utf8.DecodeRuneInString(name[cut:])
		if cut+size > shapefileFieldLimit {
			break
		}
		cut += size
	}
	return name[:cut]
}

// Boundary returns the record for id.
func (m *Manifest) Boundary(id string) (*BoundaryRecord, bool) {
	for i := range m.Boundaries {
		if m.Boundaries[i].ID == id {
			return &m.Boundaries[i], true
		}
	}
	return nil, false
}

// IDs returns the boundary identifiers in manifest order.
func (m *Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Boundaries))
	for _, b := range m.Boundaries {
		ids = append(ids, b.ID)
	}
	return ids
}

// Paths lists every output file the manifest references.
func (m *Manifest) Paths() []string {
	paths := []string{m.TempCSV, m.Descriptor}
	if m.MapFile != "" {
		paths = append(paths, m.MapFile)
	}
	for _, b := range m.Boundaries {
		paths = append(paths, b.ClippedPath)
		for _, f := range b.Fields {
			paths = append(paths, f.RasterPath)
			if m.Interpolate {
				paths = append(paths, f.InterpolatedPath)
			}
			paths = append(paths, f.StatisticRasterPath, f.StatisticPolygonPath, f.RenderPath)
		}
	}
	return paths
}

// Missing returns referenced outputs that do not exist on disk.
func (m *Manifest) Missing() []string {
	var missing []string
	for _, path := range m.Paths() {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}
