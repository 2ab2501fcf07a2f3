// Package ctxkeys 定义 HTTP 层在 context 中传递的请求级键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	authMethodKey contextKey = "auth_method"
)

// AuthMethod 请求通过的认证方式
type AuthMethod string

const (
	AuthNone   AuthMethod = "none"
	AuthAPIKey AuthMethod = "api_key"
	AuthJWT    AuthMethod = "jwt"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAuthMethod 记录请求的认证方式
func WithAuthMethod(ctx context.Context, m AuthMethod) context.Context {
	return context.WithValue(ctx, authMethodKey, m)
}

// Auth 获取认证方式，未认证时返回 AuthNone
func Auth(ctx context.Context) AuthMethod {
	v, ok := ctx.Value(authMethodKey).(AuthMethod)
	if !ok || v == "" {
		return AuthNone
	}
	return v
}
