// Package config loads, normalizes, and validates mapgen configuration.
//
// Configuration is read from TOML (or YAML when the file extension says so),
// layered over Default(), expanded so every path is absolute, and checked.
// Validate covers settings every command relies on; RequirePipeline and
// RequireCopier check the sections only the pipeline or the copier need, so a
// copier-only document does not have to describe a source dataset.
package config
