package manifest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mapgen/internal/manifest"
	"mapgen/internal/services"
)

type stubReader struct {
	extents map[string]manifest.Extent
	fail    map[string]error
	calls   []string
}

func (s *stubReader) Extent(_ context.Context, path string) (manifest.Extent, error) {
	s.calls = append(s.calls, filepath.Base(path))
	if err, ok := s.fail[filepath.Base(path)]; ok {
		return manifest.Extent{}, err
	}
	if ext, ok := s.extents[filepath.Base(path)]; ok {
		return ext, nil
	}
	return manifest.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, nil
}

func writeBoundaries(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("shp"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func baseOptions(t *testing.T) manifest.Options {
	t.Helper()
	root := t.TempDir()
	return manifest.Options{
		Dataset:         "A2-t2m-ave",
		OutputDir:       filepath.Join(root, "A2-t2m-ave"),
		BoundaryDir:     filepath.Join(root, "features"),
		BoundaryPattern: "*.shp",
		Fields: []manifest.Field{
			{Data: "P2041_2070", Significance: "Stat_sig_70"},
			{Data: "P2021_2050", Significance: "Stat_sig_50"},
		},
		XRes:        1,
		YRes:        1,
		MapTemplate: filepath.Join(root, "maps", "template.map"),
	}
}

func TestBuildDerivesPathsAndWidensExtents(t *testing.T) {
	opts := baseOptions(t)
	writeBoundaries(t, opts.BoundaryDir, "texas.shp", "alaska.shp", "notes.txt")

	m, err := manifest.Build(context.Background(), opts, &stubReader{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"alaska", "texas"}, m.IDs()); diff != "" {
		t.Fatalf("boundary ids mismatch (-want +got):\n%s", diff)
	}
	alaska, ok := m.Boundary("alaska")
	if !ok {
		t.Fatal("expected alaska boundary")
	}
	wantExtent := manifest.Extent{MinX: -1, MinY: -1, MaxX: 11, MaxY: 11}
	if alaska.Extent != wantExtent {
		t.Fatalf("unexpected widened extent %v", alaska.Extent)
	}
	if alaska.ClippedPath != filepath.Join(opts.OutputDir, "temp", "A2-t2m-ave__alaska.shp") {
		t.Fatalf("unexpected clipped path %q", alaska.ClippedPath)
	}

	wantField := manifest.FieldRecord{
		Name:                 "P2041_2070",
		Attribute:            "P2041_2070",
		LayerName:            "A2-t2m-ave__alaska__P2041_2070",
		RasterPath:           filepath.Join(opts.OutputDir, "data", "A2-t2m-ave__alaska__P2041_2070.tif"),
		InterpolatedPath:     filepath.Join(opts.OutputDir, "data", "A2-t2m-ave__alaska__P2041_2070__interp.tif"),
		StatisticField:       "Stat_sig_70",
		StatisticAttribute:   "Stat_sig_7",
		StatisticLayerName:   "A2-t2m-ave__alaska__P2041_2070__sig",
		StatisticRasterPath:  filepath.Join(opts.OutputDir, "data", "A2-t2m-ave__alaska__P2041_2070__sig.tif"),
		StatisticPolygonPath: filepath.Join(opts.OutputDir, "data", "A2-t2m-ave__alaska__P2041_2070__sig.shp"),
		RenderPath:           filepath.Join(opts.OutputDir, "renders", "A2-t2m-ave__alaska__P2041_2070.png"),
	}
	if diff := cmp.Diff(wantField, alaska.Fields[0]); diff != "" {
		t.Fatalf("field record mismatch (-want +got):\n%s", diff)
	}
	if alaska.Fields[1].Name != "P2021_2050" {
		t.Fatalf("expected configured field order, got %q", alaska.Fields[1].Name)
	}
	if m.MapFile != filepath.Join(filepath.Dir(opts.MapTemplate), "A2-t2m-ave.map") {
		t.Fatalf("unexpected map file %q", m.MapFile)
	}
	if m.TempCSV != filepath.Join(opts.OutputDir, "temp", "A2-t2m-ave.csv") {
		t.Fatalf("unexpected temp csv %q", m.TempCSV)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := baseOptions(t)
	writeBoundaries(t, opts.BoundaryDir, "c.shp", "a.shp", "b.shp")

	first, err := manifest.Build(context.Background(), opts, &stubReader{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	second, err := manifest.Build(context.Background(), opts, &stubReader{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("manifests differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, first.IDs()); diff != "" {
		t.Fatalf("expected sorted ids (-want +got):\n%s", diff)
	}
}

func TestBuildAbortsOnUnreadableBoundary(t *testing.T) {
	opts := baseOptions(t)
	writeBoundaries(t, opts.BoundaryDir, "a.shp", "broken.shp", "c.shp")
	reader := &stubReader{fail: map[string]error{"broken.shp": errors.New("not a shapefile")}}

	_, err := manifest.Build(context.Background(), opts, reader)
	if err == nil {
		t.Fatal("expected error for unreadable boundary")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if diff := cmp.Diff([]string{"a.shp", "broken.shp"}, reader.calls); diff != "" {
		t.Fatalf("expected build to stop at the broken boundary (-want +got):\n%s", diff)
	}
}

func TestBuildRequiresBoundaries(t *testing.T) {
	opts := baseOptions(t)
	writeBoundaries(t, opts.BoundaryDir)
	if _, err := manifest.Build(context.Background(), opts, &stubReader{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	opts := baseOptions(t)
	opts.XRes = 0
	opts.Fields = nil
	writeBoundaries(t, opts.BoundaryDir, "a.shp")
	_, err := manifest.Build(context.Background(), opts, &stubReader{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPathsAndMissing(t *testing.T) {
	opts := baseOptions(t)
	opts.Fields = opts.Fields[:1]
	writeBoundaries(t, opts.BoundaryDir, "a.shp")
	m, err := manifest.Build(context.Background(), opts, &stubReader{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	// csv, vrt, map, clipped, raster, sig raster, sig polygons, render
	if got := len(m.Paths()); got != 8 {
		t.Fatalf("expected 8 paths without interpolation, got %d", got)
	}
	if got := len(m.Missing()); got != 8 {
		t.Fatalf("expected every path missing, got %d", got)
	}

	for _, path := range m.Paths() {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if missing := m.Missing(); len(missing) != 0 {
		t.Fatalf("expected nothing missing, got %v", missing)
	}

	opts.Interpolate = true
	m, err = manifest.Build(context.Background(), opts, &stubReader{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if missing := m.Missing(); len(missing) != 1 || missing[0] != m.Boundaries[0].Fields[0].InterpolatedPath {
		t.Fatalf("expected only the interpolated raster missing, got %v", missing)
	}
}

func TestShapefileField(t *testing.T) {
	cases := map[string]string{
		"LON":             "LON",
		"P2041_2070":      "P2041_2070",
		"Stat_sig_70":     "Stat_sig_7",
		"Zonal_Direction": "Zonal_Dire",
		"température_x":   "températu",
	}
	for in, want := range cases {
		if got := manifest.ShapefileField(in); got != want {
			t.Fatalf("ShapefileField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBoundaryLayerNames(t *testing.T) {
	b := manifest.BoundaryRecord{ID: "alaska"}
	if b.MaskLayer() != "alaska_mask" || b.OutlineLayer() != "alaska_outline" {
		t.Fatalf("unexpected layer names %q %q", b.MaskLayer(), b.OutlineLayer())
	}
}
