package logger

import (
	"context"

	"go.uber.org/zap"
)

// Field names for structured logging
const (
	// Identity and context
	FieldJobID       = "job_id"
	FieldBatchID     = "batch_id"
	FieldBatchItemID = "batch_item_id"
	FieldActor       = "actor"

	// Objects
	FieldObjectType = "object_type"
	FieldID         = "id"
	FieldParentID   = "parent_id"

	// Components
	FieldComponent = "component"
	FieldHandler   = "handler"

	// Operations
	FieldOperation = "operation"
	FieldStep      = "step"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError      = "error"
	FieldErrorClass = "error_class"

	// Counts
	FieldCount      = "count"
	FieldTotalCount = "total_count"
	FieldFailed     = "failed"

	// Status
	FieldStatus = "status"

	// Files and paths
	FieldFile = "file"
	FieldPath = "path"
)

type contextKey int

const (
	jobIDKey contextKey = iota
	batchItemIDKey
)

// WithJobID tags ctx so FromContext adds job_id
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithBatchItemID tags ctx so FromContext adds batch_item_id
func WithBatchItemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchItemIDKey, id)
}

// FromContext returns base with the ids carried by ctx attached
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	var fields []interface{}
	for _, kv := range []struct {
		key   contextKey
		field string
	}{{jobIDKey, FieldJobID}, {batchItemIDKey, FieldBatchItemID}} {
		if v, ok := ctx.Value(kv.key).(string); ok && v != "" {
			fields = append(fields, kv.field, v)
		}
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
