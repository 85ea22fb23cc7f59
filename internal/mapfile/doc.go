// Package mapfile assembles the MapServer configuration used to render every
// boundary/field pair.
//
// Layer blocks are generated from the manifest and substituted into a template
// at a marker line. The template owns everything outside the layers: map
// extent, projection, output formats and the "hatch" symbol used by the
// high-significance class.
package mapfile
