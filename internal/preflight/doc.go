// Package preflight provides readiness checks for the external GIS tools and
// filesystem paths a map-generation run depends on.
//
// These checks run in two contexts:
//   - "mapgen run" calls RunAll before the pipeline starts and refuses to
//     produce any output when a required check fails.
//   - "mapgen doctor" renders every result as a table.
//
// gdalwarp is only required when interpolation is enabled.
package preflight
