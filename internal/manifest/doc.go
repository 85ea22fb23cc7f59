// Package manifest derives the complete, immutable output plan for one
// pipeline run.
//
// Build discovers boundary files, reads and widens their extents, and computes
// every path the pipeline will produce, grouped by boundary and field. The
// result is deterministic: boundaries are sorted by identifier and fields keep
// their configured order, so the same inputs always produce the same plan.
//
// Path convention: every per-field output is named
// {dataset}__{boundary}__{field} plus a stage suffix, and extents are always
// ordered xmin, ymin, xmax, ymax.
package manifest
