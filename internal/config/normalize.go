package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeSource(); err != nil {
		return err
	}
	if err := c.normalizeBoundaries(); err != nil {
		return err
	}
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeTools()
	if err := c.normalizeCopier(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeSource() error {
	var err error
	c.Source.Path = strings.TrimSpace(c.Source.Path)
	if c.Source.Path, err = expandPath(c.Source.Path); err != nil {
		return fmt.Errorf("source.path: %w", err)
	}
	c.Output.Dir = strings.TrimSpace(c.Output.Dir)
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	c.Source.LonColumn = strings.TrimSpace(c.Source.LonColumn)
	if c.Source.LonColumn == "" {
		c.Source.LonColumn = defaultLonColumn
	}
	c.Source.LatColumn = strings.TrimSpace(c.Source.LatColumn)
	if c.Source.LatColumn == "" {
		c.Source.LatColumn = defaultLatColumn
	}
	c.Source.Encoding = normalizeEncoding(c.Source.Encoding)
	for i := range c.Source.Fields {
		field := &c.Source.Fields[i]
		field.Data = strings.TrimSpace(field.Data)
		field.Significance = strings.TrimSpace(field.Significance)
		field.Type = strings.TrimSpace(field.Type)
		if field.Type == "" {
			field.Type = defaultFieldType
		}
	}
	return nil
}

func normalizeEncoding(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "utf-8", "utf8":
		return "utf-8"
	case "latin1", "latin-1", "iso-8859-1":
		return "latin1"
	case "latin2", "latin-2", "iso-8859-2":
		return "latin2"
	case "windows-1250", "cp1250":
		return "windows-1250"
	case "windows-1252", "cp1252":
		return "windows-1252"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) normalizeBoundaries() error {
	var err error
	if c.Boundaries.Dir, err = expandPath(strings.TrimSpace(c.Boundaries.Dir)); err != nil {
		return fmt.Errorf("boundaries.dir: %w", err)
	}
	c.Boundaries.Pattern = strings.TrimSpace(c.Boundaries.Pattern)
	if c.Boundaries.Pattern == "" {
		c.Boundaries.Pattern = defaultBoundaryPattern
	}
	return nil
}

func (c *Config) normalizeRender() error {
	var err error
	if c.Render.MapTemplate, err = expandPath(strings.TrimSpace(c.Render.MapTemplate)); err != nil {
		return fmt.Errorf("render.map_template: %w", err)
	}
	c.Render.ClassesInclude = strings.TrimSpace(c.Render.ClassesInclude)
	if strings.TrimSpace(c.Render.LayerMarker) == "" {
		c.Render.LayerMarker = defaultLayerMarker
	}
	if c.Render.MaxDimension == 0 {
		c.Render.MaxDimension = defaultMaxDimension
	}
	if c.Render.InterpolateSize == 0 {
		c.Render.InterpolateSize = defaultInterpolateSize
	}
	c.Render.SRS = strings.TrimSpace(c.Render.SRS)
	if c.Render.SRS == "" {
		c.Render.SRS = defaultSRS
	}
	c.Render.Format = strings.TrimSpace(c.Render.Format)
	if c.Render.Format == "" {
		c.Render.Format = defaultFormat
	}
	return nil
}

func (c *Config) normalizeTools() {
	binDir := ""
	if value, ok := os.LookupEnv("MAPGEN_GDAL_BIN_DIR"); ok {
		binDir = strings.TrimSpace(value)
	}
	resolve := func(value, fallback string) string {
		value = strings.TrimSpace(value)
		if value == "" {
			value = fallback
		}
		if binDir != "" && !strings.ContainsRune(value, filepath.Separator) {
			value = filepath.Join(binDir, value)
		}
		return value
	}
	c.Tools.Ogr2ogr = resolve(c.Tools.Ogr2ogr, defaultOgr2ogr)
	c.Tools.GDALRasterize = resolve(c.Tools.GDALRasterize, defaultGDALRasterize)
	c.Tools.GDALWarp = resolve(c.Tools.GDALWarp, defaultGDALWarp)
	c.Tools.GDALPolygonize = resolve(c.Tools.GDALPolygonize, defaultGDALPolygonize)

	c.Tools.Mapserv = strings.TrimSpace(c.Tools.Mapserv)
	if value, ok := os.LookupEnv("MAPGEN_MAPSERV"); ok && strings.TrimSpace(value) != "" {
		c.Tools.Mapserv = strings.TrimSpace(value)
	}
	if c.Tools.Mapserv == "" {
		c.Tools.Mapserv = defaultMapserv
	}
	if c.Tools.TimeoutSeconds < 0 {
		c.Tools.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeCopier() error {
	var err error
	root := strings.TrimSpace(c.Copier.Root)
	if root == "" {
		root = "."
	}
	if c.Copier.Root, err = expandPath(root); err != nil {
		return fmt.Errorf("copier.root: %w", err)
	}
	c.Copier.Discover = strings.TrimSpace(c.Copier.Discover)
	c.Copier.Source = strings.TrimSpace(c.Copier.Source)
	if len(c.Copier.Targets) == 0 {
		c.Copier.Targets = defaultCopyTargets()
	}
	for i := range c.Copier.Targets {
		c.Copier.Targets[i].Dir = strings.TrimSpace(c.Copier.Targets[i].Dir)
		c.Copier.Targets[i].Ext = strings.TrimPrefix(strings.TrimSpace(c.Copier.Targets[i].Ext), ".")
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
