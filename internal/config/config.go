package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Field pairs a numeric data column with its statistical-significance column.
type Field struct {
	Data         string `toml:"data" yaml:"data" validate:"required"`
	Significance string `toml:"significance" yaml:"significance" validate:"required"`
	// Type is the OGR attribute type declared for the data column.
	Type string `toml:"type" yaml:"type" validate:"omitempty,oneof=Real Integer Integer64 String"`
}

// Source describes the tabular climate projection being mapped.
type Source struct {
	Path      string  `toml:"path" yaml:"path" validate:"required"`
	Lon0360   bool    `toml:"lon_0_360" yaml:"lon_0_360"`
	LonColumn string  `toml:"lon_column" yaml:"lon_column" validate:"required"`
	LatColumn string  `toml:"lat_column" yaml:"lat_column" validate:"required"`
	Encoding  string  `toml:"encoding" yaml:"encoding" validate:"oneof=utf-8 latin1 latin2 windows-1250 windows-1252"`
	XRes      float64 `toml:"xres" yaml:"xres" validate:"gt=0"`
	YRes      float64 `toml:"yres" yaml:"yres" validate:"gt=0"`
	Fields    []Field `toml:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

// Boundaries locates the administrative boundary files that drive clipping.
type Boundaries struct {
	Dir     string `toml:"dir" yaml:"dir" validate:"required"`
	Pattern string `toml:"pattern" yaml:"pattern" validate:"required"`
}

// Output controls where the temp/, data/, and renders/ trees are created.
type Output struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// Render contains map-rendering configuration.
type Render struct {
	MapTemplate     string `toml:"map_template" yaml:"map_template" validate:"required"`
	LayerMarker     string `toml:"layer_marker" yaml:"layer_marker" validate:"required"`
	ClassesInclude  string `toml:"classes_include" yaml:"classes_include"`
	MaxDimension    int    `toml:"max_dimension" yaml:"max_dimension" validate:"gt=0"`
	Interpolate     bool   `toml:"interpolate" yaml:"interpolate"`
	InterpolateSize int    `toml:"interpolate_size" yaml:"interpolate_size" validate:"gt=0"`
	SRS             string `toml:"srs" yaml:"srs" validate:"required"`
	Format          string `toml:"format" yaml:"format" validate:"required"`
	HighClass       int    `toml:"high_class" yaml:"high_class"`
	ModerateClass   int    `toml:"moderate_class" yaml:"moderate_class"`
}

// Tools names the external GIS executables.
type Tools struct {
	Ogr2ogr        string `toml:"ogr2ogr" yaml:"ogr2ogr"`
	GDALRasterize  string `toml:"gdal_rasterize" yaml:"gdal_rasterize"`
	GDALWarp       string `toml:"gdalwarp" yaml:"gdalwarp"`
	GDALPolygonize string `toml:"gdal_polygonize" yaml:"gdal_polygonize"`
	Mapserv        string `toml:"mapserv" yaml:"mapserv"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Pipeline contains execution settings for the pipeline driver.
type Pipeline struct {
	Workers int `toml:"workers" yaml:"workers"`
}

// CopyTarget is one fan-out category of the copier.
type CopyTarget struct {
	Dir string `toml:"dir" yaml:"dir" validate:"required"`
	Ext string `toml:"ext" yaml:"ext" validate:"required"`
}

// Copier configures the render/data fan-out utility.
type Copier struct {
	Root     string       `toml:"root" yaml:"root"`
	Discover string       `toml:"discover" yaml:"discover" validate:"required,contains={boundary}"`
	Source   string       `toml:"source" yaml:"source" validate:"required,contains={boundary}"`
	Targets  []CopyTarget `toml:"targets" yaml:"targets" validate:"required,min=1,dive"`
}

// Paths contains directories owned by mapgen itself.
type Paths struct {
	StateDir string `toml:"state_dir" yaml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" yaml:"format"`
	Level         string `toml:"level" yaml:"level"`
	// RetentionDays prunes per-run log files older than this; 0 keeps them all.
	RetentionDays int    `toml:"retention_days" yaml:"retention_days"`
}

// Config encapsulates all configuration values for mapgen.
//
// Configuration sections by subsystem:
//   - Source: tabular input, longitude convention, grid resolution, fields
//   - Boundaries: boundary shapefile directory and glob
//   - Output: dataset output root
//   - Render: mapfile template, image sizing, significance classes
//   - Tools: external GIS binaries and per-call timeout
//   - Pipeline: worker count
//   - Copier: render/data fan-out patterns
//   - Paths: state directory (run history)
//   - Logging: log format and level
type Config struct {
	Source     Source     `toml:"source" yaml:"source"`
	Boundaries Boundaries `toml:"boundaries" yaml:"boundaries"`
	Output     Output     `toml:"output" yaml:"output"`
	Render     Render     `toml:"render" yaml:"render"`
	Tools      Tools      `toml:"tools" yaml:"tools"`
	Pipeline   Pipeline   `toml:"pipeline" yaml:"pipeline"`
	Copier     Copier     `toml:"copier" yaml:"copier"`
	Paths      Paths      `toml:"paths" yaml:"paths"`
	Logging    Logging    `toml:"logging" yaml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mapgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := decode(file, resolvedPath, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decode(r io.Reader, path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return toml.NewDecoder(r).Decode(cfg)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mapgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// DatasetName returns the base name shared by every derived output, taken from
// the source file name without its extension.
func (c *Config) DatasetName() string {
	base := filepath.Base(c.Source.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputDir returns the dataset output root. It defaults to the source path
// without its extension.
func (c *Config) OutputDir() string {
	if strings.TrimSpace(c.Output.Dir) != "" {
		return c.Output.Dir
	}
	if c.Source.Path == "" {
		return ""
	}
	return strings.TrimSuffix(c.Source.Path, filepath.Ext(c.Source.Path))
}

// RunLogDir returns the directory holding per-run JSON log files.
func (c *Config) RunLogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// HistoryPath returns the location of the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// EnsureDirectories creates directories mapgen owns regardless of command.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
