package gdal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mapgen/internal/manifest"
	"mapgen/internal/services"
)

const shapefileDriver = "ESRI Shapefile"

// Binaries names the executables the client invokes.
type Binaries struct {
	Ogr2ogr    string
	Rasterize  string
	Warp       string
	Polygonize string
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout bounds every tool invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client runs GDAL/OGR utilities.
type Client struct {
	bins    Binaries
	timeout time.Duration
	exec    services.Executor
}

// New constructs a GDAL client.
func New(bins Binaries, opts ...Option) (*Client, error) {
	bins.Ogr2ogr = strings.TrimSpace(bins.Ogr2ogr)
	bins.Rasterize = strings.TrimSpace(bins.Rasterize)
	bins.Warp = strings.TrimSpace(bins.Warp)
	bins.Polygonize = strings.TrimSpace(bins.Polygonize)
	var missing []string
	if bins.Ogr2ogr == "" {
		missing = append(missing, "ogr2ogr")
	}
	if bins.Rasterize == "" {
		missing = append(missing, "gdal_rasterize")
	}
	if bins.Warp == "" {
		missing = append(missing, "gdalwarp")
	}
	if bins.Polygonize == "" {
		missing = append(missing, "gdal_polygonize")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("gdal binaries required: %s", strings.Join(missing, ", "))
	}
	client := &Client{bins: bins, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ClipRequest extracts the points of Source that fall inside Extent.
type ClipRequest struct {
	Source      string
	Destination string
	Layer       string
	Extent      manifest.Extent
}

// Clip writes the points of req.Source inside req.Extent to a shapefile layer.
func (c *Client) Clip(ctx context.Context, req ClipRequest) error {
	args := []string{"-overwrite", "-f", shapefileDriver, "-nln", req.Layer, "-clipsrc"}
	args = append(args, req.Extent.Args()...)
	args = append(args, req.Destination, req.Source)
	return c.run(ctx, c.bins.Ogr2ogr, args, req.Destination)
}

// RasterizeRequest grids one attribute of a point layer.
type RasterizeRequest struct {
	Source      string
	Layer       string
	Attribute   string
	Destination string
	XRes        float64
	YRes        float64
	Extent      manifest.Extent
	// OutputType is the GDAL band type; empty means Float32.
	OutputType string
	NoData     float64
}

// Rasterize burns req.Attribute into a new GeoTIFF covering req.Extent.
func (c *Client) Rasterize(ctx context.Context, req RasterizeRequest) error {
	outputType := req.OutputType
	if outputType == "" {
		outputType = "Float32"
	}
	// gdal_rasterize updates an existing raster in place and refuses -tr/-te
	// when it does, so start from nothing.
	if err := removeFiles(req.Destination); err != nil {
		return err
	}
	args := []string{
		"-a", req.Attribute,
		"-ot", outputType,
		"-a_nodata", formatFloat(req.NoData),
		"-tr", formatFloat(req.XRes), formatFloat(req.YRes),
		"-te",
	}
	args = append(args, req.Extent.Args()...)
	args = append(args, "-l", req.Layer, req.Source, req.Destination)
	return c.run(ctx, c.bins.Rasterize, args, req.Destination)
}

// ResampleRequest upsamples a raster to a fixed pixel size.
type ResampleRequest struct {
	Source      string
	Destination string
	Width       int
	Height      int
}

// Resample writes a bilinear resampling of req.Source at Width x Height.
func (c *Client) Resample(ctx context.Context, req ResampleRequest) error {
	if req.Width < 1 || req.Height < 1 {
		return services.Wrap(services.ErrValidation, "gdal", "resample",
			fmt.Sprintf("invalid target size %dx%d", req.Width, req.Height), nil)
	}
	args := []string{
		"-overwrite",
		"-r", "bilinear",
		"-ts", strconv.Itoa(req.Width), strconv.Itoa(req.Height),
		req.Source, req.Destination,
	}
	return c.run(ctx, c.bins.Warp, args, req.Destination)
}

// PolygonizeRequest converts a class raster into polygons.
type PolygonizeRequest struct {
	Source      string
	Destination string
	Layer       string
	ClassField  string
}

// Polygonize writes one polygon per connected run of equal cells, with the
// cell value stored in req.ClassField. Nodata cells produce no polygons.
func (c *Client) Polygonize(ctx context.Context, req PolygonizeRequest) error {
	// gdal_polygonize appends to an existing layer.
	if err := removeFiles(shapefileSidecars(req.Destination)...); err != nil {
		return err
	}
	args := []string{"-f", shapefileDriver, req.Source, req.Destination, req.Layer, req.ClassField}
	return c.run(ctx, c.bins.Polygonize, args, req.Destination)
}

func (c *Client) run(ctx context.Context, binary string, args []string, output string) error {
	cmd := services.Command{Binary: binary, Args: args, Timeout: c.timeout}
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrFilesystem, "gdal", filepath.Base(binary), "create output directory", err)
		}
	}
	if _, err := c.exec.Run(ctx, cmd); err != nil {
		return err
	}
	return services.RequireOutput(cmd, output)
}

func shapefileSidecars(path string) []string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	exts := []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}
	paths := make([]string, 0, len(exts))
	for _, ext := range exts {
		paths = append(paths, stem+ext)
	}
	return paths
}

func removeFiles(paths ...string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrFilesystem, "gdal", "prepare", "remove stale output", err)
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
