package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mapgen/internal/config"
	"mapgen/internal/services"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "mapgen")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.HistoryPath() != filepath.Join(wantState, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
	if cfg.RunLogDir() != filepath.Join(wantState, "logs") {
		t.Fatalf("unexpected run log dir: %q", cfg.RunLogDir())
	}
	if cfg.Source.LonColumn != "LON" || cfg.Source.LatColumn != "LAT" || cfg.Source.Encoding != "utf-8" {
		t.Fatalf("unexpected source defaults: %+v", cfg.Source)
	}
	if cfg.Render.MaxDimension != 800 || cfg.Render.InterpolateSize != 2000 || cfg.Render.LayerMarker != "$$LAYERS$$" {
		t.Fatalf("unexpected render defaults: %+v", cfg.Render)
	}
	if cfg.Render.HighClass != 2 || cfg.Render.ModerateClass != 1 {
		t.Fatalf("unexpected class defaults: high=%d moderate=%d", cfg.Render.HighClass, cfg.Render.ModerateClass)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Fatalf("expected sequential default, got %d workers", cfg.Pipeline.Workers)
	}
	if len(cfg.Copier.Targets) != 2 || cfg.Copier.Targets[0].Dir != "renders" || cfg.Copier.Targets[1].Ext != "*" {
		t.Fatalf("unexpected copier targets: %+v", cfg.Copier.Targets)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.StateDir); err != nil || !info.IsDir() {
		t.Fatalf("expected state dir to exist: %v", err)
	}

	if err := cfg.RequirePipeline(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected defaults to fail pipeline requirements, got %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mapgen.toml")

	type field struct {
		Data         string `toml:"data"`
		Significance string `toml:"significance"`
	}
	type payload struct {
		Source struct {
			Path     string  `toml:"path"`
			Lon0360  bool    `toml:"lon_0_360"`
			Encoding string  `toml:"encoding"`
			XRes     float64 `toml:"xres"`
			YRes     float64 `toml:"yres"`
			Fields   []field `toml:"fields"`
		} `toml:"source"`
		Boundaries struct {
			Dir string `toml:"dir"`
		} `toml:"boundaries"`
		Render struct {
			MapTemplate string `toml:"map_template"`
		} `toml:"render"`
		Pipeline struct {
			Workers int `toml:"workers"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.Source.Path = filepath.Join(tempDir, "P_RCP_85_Annual.csv")
	custom.Source.Lon0360 = true
	custom.Source.Encoding = "ISO-8859-1"
	custom.Source.XRes = 0.125
	custom.Source.YRes = 0.125
	custom.Source.Fields = []field{{Data: "P2041_2070", Significance: "Stat_sig_70"}}
	custom.Boundaries.Dir = filepath.Join(tempDir, "bounds")
	custom.Render.MapTemplate = filepath.Join(tempDir, "maps", "nca.map")
	custom.Pipeline.Workers = 4

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Source.Encoding != "latin1" {
		t.Fatalf("expected encoding alias to normalize to latin1, got %q", cfg.Source.Encoding)
	}
	if cfg.Source.Fields[0].Type != "Real" {
		t.Fatalf("expected default field type Real, got %q", cfg.Source.Fields[0].Type)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Pipeline.Workers)
	}
	if cfg.DatasetName() != "P_RCP_85_Annual" {
		t.Fatalf("unexpected dataset name: %q", cfg.DatasetName())
	}
	if cfg.OutputDir() != filepath.Join(tempDir, "P_RCP_85_Annual") {
		t.Fatalf("unexpected default output dir: %q", cfg.OutputDir())
	}
	if err := cfg.RequirePipeline(); err != nil {
		t.Fatalf("RequirePipeline: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mapgen.yaml")
	content := strings.Join([]string{
		"source:",
		"  path: " + filepath.Join(tempDir, "nca.csv"),
		"  xres: 1",
		"  yres: 1",
		"  fields:",
		"    - data: TAVG",
		"      significance: TSIG",
		"output:",
		"  dir: " + filepath.Join(tempDir, "out"),
		"logging:",
		"  level: DEBUG",
		"  format: json",
		"",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.OutputDir() != filepath.Join(tempDir, "out") {
		t.Fatalf("unexpected output dir: %q", cfg.OutputDir())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestToolEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("MAPGEN_GDAL_BIN_DIR", "/opt/gdal/bin")
	t.Setenv("MAPGEN_MAPSERV", "/usr/lib/cgi-bin/mapserv")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Tools.Ogr2ogr != "/opt/gdal/bin/ogr2ogr" {
		t.Fatalf("unexpected ogr2ogr: %q", cfg.Tools.Ogr2ogr)
	}
	if cfg.Tools.GDALPolygonize != "/opt/gdal/bin/gdal_polygonize.py" {
		t.Fatalf("unexpected polygonize: %q", cfg.Tools.GDALPolygonize)
	}
	if cfg.Tools.Mapserv != "/usr/lib/cgi-bin/mapserv" {
		t.Fatalf("unexpected mapserv: %q", cfg.Tools.Mapserv)
	}
}

func TestCreateSample(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "config.toml")

	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	for _, section := range []string{"[source]", "[boundaries]", "[render]", "[tools]", "[copier]", "[logging]"} {
		if !strings.Contains(string(data), section) {
			t.Errorf("sample config missing %s", section)
		}
	}

	t.Setenv("HOME", tempDir)
	cfg, _, _, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if err := cfg.RequireCopier(); err != nil {
		t.Fatalf("sample copier section invalid: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Source.Path = "/data/nca.csv"
		cfg.Source.XRes = 1
		cfg.Source.YRes = 1
		cfg.Source.Fields = []config.Field{{Data: "TAVG", Significance: "TSIG", Type: "Real"}}
		cfg.Boundaries.Dir = "/data/bounds"
		cfg.Render.MapTemplate = "/data/maps/nca.map"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"retention", func(c *config.Config) { c.Logging.RetentionDays = -1 }, "retention_days"},
		{"level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"resolution", func(c *config.Config) { c.Source.XRes = 0 }, "xres"},
		{"no fields", func(c *config.Config) { c.Source.Fields = nil }, "fields"},
		{"encoding", func(c *config.Config) { c.Source.Encoding = "ebcdic" }, "encoding"},
		{"same columns", func(c *config.Config) { c.Source.LatColumn = "LON" }, "must differ"},
		{"same classes", func(c *config.Config) { c.Render.ModerateClass = 2 }, "must differ"},
		{"duplicate column", func(c *config.Config) {
			c.Source.Fields = append(c.Source.Fields, config.Field{Data: "TAVG", Significance: "TSIG2"})
		}, "more than once"},
		{"truncated clash", func(c *config.Config) {
			c.Source.Fields = []config.Field{
				{Data: "P2041_2070_MEAN", Significance: "S1"},
				{Data: "P2041_2070_MEDIAN", Significance: "S2"},
			}
		}, "shapefile attribute"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				err = cfg.RequirePipeline()
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := cfg.RequirePipeline(); err != nil {
		t.Fatalf("valid config rejected by RequirePipeline: %v", err)
	}
}
