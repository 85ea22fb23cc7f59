package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mapgen/internal/config"
)

// MapTemplate is the render template NewConfig writes: one hatch symbol and
// the default layer marker.
const MapTemplate = `MAP
  NAME "nca"
  SYMBOL
    NAME "hatch"
    TYPE HATCH
  END
  $$LAYERS$$
END
`

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The source is a small CSV with one TAVG/TSIG field pair and the boundary
// directory is empty until WithBoundary adds files.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Source.Path = filepath.Join(base, "input", "nca.csv")
	cfgVal.Source.XRes = 1
	cfgVal.Source.YRes = 1
	cfgVal.Source.Fields = []config.Field{{Data: "TAVG", Significance: "TSIG", Type: "Real"}}
	cfgVal.Boundaries.Dir = filepath.Join(base, "boundaries")
	cfgVal.Output.Dir = filepath.Join(base, "output")
	cfgVal.Render.MapTemplate = filepath.Join(base, "maps", "template.map")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Copier.Root = filepath.Join(base, "output")

	for _, dir := range []string{filepath.Dir(cfgVal.Source.Path), cfgVal.Boundaries.Dir, filepath.Dir(cfgVal.Render.MapTemplate)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	WriteText(t, cfgVal.Render.MapTemplate, MapTemplate)

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSourceRows writes the source CSV with a LON,LAT,TAVG,TSIG header and
// the given rows.
func WithSourceRows(rows ...string) ConfigOption {
	return func(b *configBuilder) {
		text := "LON,LAT,TAVG,TSIG\n"
		for _, row := range rows {
			text += row + "\n"
		}
		WriteText(b.t, b.cfg.Source.Path, text)
	}
}

// WithLon0360 marks the source longitudes as 0..360.
func WithLon0360() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Lon0360 = true
	}
}

// WithBoundary writes a single-rectangle boundary shapefile named id.
func WithBoundary(id string, minX, minY, maxX, maxY float64) ConfigOption {
	return func(b *configBuilder) {
		WriteBoundary(b.t, filepath.Join(b.cfg.Boundaries.Dir, id+".shp"), minX, minY, maxX, maxY)
	}
}

// WithWorkers sets the pipeline worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default GIS binaries are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			tools := b.cfg.Tools
			names = []string{tools.Ogr2ogr, tools.GDALRasterize, tools.GDALWarp, tools.GDALPolygonize, tools.Mapserv}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, filepath.Base(name))
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Boundaries.Dir)
}
