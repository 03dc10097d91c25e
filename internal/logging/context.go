package logging

import (
	"context"
	"log/slog"

	"aperture/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldStudy is the standardized structured logging key for study codes.
	FieldStudy = "study"
	// FieldInterview is the standardized structured logging key for interview names.
	FieldInterview = "interview"
	// FieldItem is the standardized structured logging key for work item keys.
	FieldItem = "item"
	// FieldAttempt is the standardized structured logging key for retry attempt numbers.
	FieldAttempt = "attempt"
	// FieldCorrelationID is the standardized structured logging key for per-item correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if key, ok := services.ItemKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItem, key))
	}
	if study, ok := services.StudyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStudy, study))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
