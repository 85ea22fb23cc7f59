// Package gdal wraps the GDAL/OGR command-line tools used by the pipeline:
// ogr2ogr for clipping points to a boundary, gdal_rasterize for gridding,
// gdalwarp for resampling and gdal_polygonize for significance polygons.
//
// Every call is a single process run through a services.Executor. A non-zero
// exit or an output file that is missing afterwards is returned as a
// *services.ToolError; nothing is retried.
package gdal
