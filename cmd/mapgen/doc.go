// Package main hosts the mapgen CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the full map-generation pipeline, its
// individual preparation steps, the render/data copier, the run history
// browser, and configuration scaffolding. Configuration is resolved once per
// invocation and shared by every subcommand through commandContext.
package main
