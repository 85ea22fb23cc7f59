package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	stageKey    contextKey = "stage"
	boundaryKey contextKey = "boundary"
	fieldKey    contextKey = "field"
)

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithBoundary annotates context with the boundary identifier being processed.
func WithBoundary(ctx context.Context, boundary string) context.Context {
	if boundary == "" {
		return ctx
	}
	return context.WithValue(ctx, boundaryKey, boundary)
}

// BoundaryFromContext returns the boundary identifier if present.
func BoundaryFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, boundaryKey)
}

// WithField annotates context with the data field being processed.
func WithField(ctx context.Context, field string) context.Context {
	if field == "" {
		return ctx
	}
	return context.WithValue(ctx, fieldKey, field)
}

// FieldFromContext returns the data field if present.
func FieldFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, fieldKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if str, ok := ctx.Value(key).(string); ok && str != "" {
		return str, true
	}
	return "", false
}
