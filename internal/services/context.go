package services

import "context"

type contextKey string

const (
	recordingIDKey contextKey = "recording_id"
	stageKey       contextKey = "stage"
	accountKey     contextKey = "account"
	requestIDKey   contextKey = "request_id"
)

// WithRecordingID annotates context with the queue recording identifier.
func WithRecordingID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, recordingIDKey, id)
}

// RecordingIDFromContext extracts the queue recording identifier if present.
func RecordingIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(recordingIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
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
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithAccount annotates context with the platform account identifier.
func WithAccount(ctx context.Context, account string) context.Context {
	if account == "" {
		return ctx
	}
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext returns the account identifier if present.
func AccountFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(accountKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
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
