package services

import "context"

type contextKey string

const (
	stageKey     contextKey = "stage"
	itemKeyKey   contextKey = "item_key"
	studyKey     contextKey = "study"
	requestIDKey contextKey = "request_id"
)

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithItemKey annotates context with the work item key being processed.
func WithItemKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, itemKeyKey, key)
}

// ItemKeyFromContext returns the work item key if present.
func ItemKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStudy annotates context with the study code.
func WithStudy(ctx context.Context, study string) context.Context {
	if study == "" {
		return ctx
	}
	return context.WithValue(ctx, studyKey, study)
}

// StudyFromContext returns the study code if present.
func StudyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(studyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
