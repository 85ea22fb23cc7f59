// Package pipeline drives one map-generation run from configuration to
// rendered images.
//
// The Driver builds the manifest first so boundary problems surface before any
// output is written, then normalizes the source table, writes the point
// descriptor, and works through each boundary: clip, rasterize the data and
// significance columns, optionally resample, and polygonize the significance
// raster. Once every boundary is complete it writes the map configuration,
// renders one image per boundary/field pair, and verifies that every path the
// manifest references exists.
//
// Boundaries run concurrently when pipeline.workers > 1; each boundary's chain
// stays sequential. The first failure cancels the run and is returned as a
// *StageError naming the stage, boundary and field. A run holds an exclusive
// lock on its output directory and, when a journal is configured, records the
// run and every tool invocation.
package pipeline
