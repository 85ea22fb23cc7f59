// Package services defines shared utilities consumed by the pipeline stages and
// the external GIS tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, boundaries, fields, and stage names
//     for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     configuration, data, filesystem, or external-tool errors.
//   - The Executor abstraction and ToolError result that make every external
//     process invocation testable and explicitly checked.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
