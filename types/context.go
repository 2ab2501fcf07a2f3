package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID            contextKey = "trace_id"
	keyTenantID           contextKey = "tenant_id"
	keyUserID             contextKey = "user_id"
	keyExecutionProcessID contextKey = "execution_process_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithTenantID adds tenant ID to context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// TenantID extracts tenant ID from context.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTenantID).(string)
	return v, ok && v != ""
}

// WithUserID adds the authenticated user (the responder) to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts the authenticated user from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithExecutionProcessID tags a context with the owning execution process.
func WithExecutionProcessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyExecutionProcessID, id)
}

// ExecutionProcessID extracts the execution process from context.
func ExecutionProcessID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyExecutionProcessID).(string)
	return v, ok && v != ""
}
