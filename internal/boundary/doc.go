// Package boundary reads administrative boundary shapefiles.
//
// ShapefileReader satisfies manifest.ExtentReader: it decodes every shape in a
// file and returns the union of their bounds in geographic WGS84 coordinates,
// reprojecting when the file ships a .prj describing another system.
package boundary
