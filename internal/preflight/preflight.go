package preflight

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mapgen/internal/config"
	"mapgen/internal/deps"
	"mapgen/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckTools(cfg) {
		r := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Detail}
		if status.Available {
			r.Detail = status.Path
		}
		results = append(results, r)
	}
	if ctx.Err() != nil {
		return results
	}

	results = append(results,
		CheckReadableFile("Source file", cfg.Source.Path),
		CheckReadableDir("Boundary directory", cfg.Boundaries.Dir),
		CheckReadableFile("Map template", cfg.Render.MapTemplate),
		CheckWritableDir("Output directory", cfg.OutputDir()),
	)
	if cfg.Render.MapTemplate != "" {
		results = append(results, CheckWritableDir("Map template directory", filepath.Dir(cfg.Render.MapTemplate)))
	}
	if cfg.Paths.StateDir != "" {
		results = append(results, CheckWritableDir("State directory", cfg.Paths.StateDir))
	}
	return results
}

// CheckTools reports the availability of every configured GIS binary.
func CheckTools(cfg *config.Config) []deps.Status {
	tools := cfg.Tools
	return deps.CheckBinaries([]deps.Requirement{
		{Name: "ogr2ogr", Command: tools.Ogr2ogr, Description: "Clips the point layer to each boundary"},
		{Name: "gdal_rasterize", Command: tools.GDALRasterize, Description: "Burns values into rasters"},
		{Name: "gdalwarp", Command: tools.GDALWarp, Description: "Resamples rasters for interpolated renders", Optional: !cfg.Render.Interpolate},
		{Name: "gdal_polygonize", Command: tools.GDALPolygonize, Description: "Extracts significance polygons"},
		{Name: "mapserv", Command: tools.Mapserv, Description: "Renders map images"},
	})
}

// Err summarizes failed required checks as one configuration error, or nil.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "", strings.Join(failed, "; "), errors.New("preflight failed"))
}
