package logging

import (
	"context"
	"log/slog"

	"scanwatch/internal/services"
)

// Canonical structured-log field names shared across components.
const (
	FieldComponent     = "component"
	FieldItemID        = "item_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldAlert         = "alert"
)

// ContextFields extracts well-known request metadata from ctx as attrs.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]Attr, 0, 3)
	if itemID, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, Int64(FieldItemID, itemID))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, String(FieldStage, stage))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, String(FieldCorrelationID, requestID))
	}
	return fields
}

// WithContext returns a child logger annotated with context metadata.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return nil
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		args = append(args, field)
	}
	return logger.With(args...)
}
