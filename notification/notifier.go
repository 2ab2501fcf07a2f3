package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/internal/pool"
	"github.com/BaSui01/approvalflow/internal/tlsutil"
)

// Notifier 发送一条通知
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, title, body string) error

// Notify 调用 f
func (f NotifierFunc) Notify(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

// Message 通道上传输的通知载荷
type Message struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// encodeMessage 借用池化缓冲区编码，返回独立副本；Transport 在 Do 返回后仍可能读取请求体
func encodeMessage(m Message) ([]byte, error) {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(m); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// =============================================================================
// 📝 日志通道
// =============================================================================

// LogNotifier 以日志输出通知
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通道
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "notifier"), zap.String("channel", "log"))}
}

// Notify 写一条 info 日志
func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Info(title, zap.String("body", body))
	return nil
}

// =============================================================================
// 🌐 Webhook 通道
// =============================================================================

// WebhookNotifier 以 JSON POST 投递通知
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier 创建 Webhook 通道，使用加固的 TLS 客户端
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{url: url, client: tlsutil.SecureHTTPClient(timeout)}
}

// WithHTTPClient 替换 HTTP 客户端
func (n *WebhookNotifier) WithHTTPClient(client *http.Client) *WebhookNotifier {
	n.client = client
	return n
}

// Notify 发送 POST 请求，非 2xx 视为失败
func (n *WebhookNotifier) Notify(ctx context.Context, title, body string) error {
	payload, err := encodeMessage(Message{Title: title, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// 📡 Redis 通道
// =============================================================================

// Publisher Redis 发布能力，由 cache.Manager 实现
type Publisher interface {
	Publish(ctx context.Context, channel string, payload string) error
}

// RedisNotifier 以 PUBLISH 投递通知
type RedisNotifier struct {
	publisher Publisher
	channel   string
}

// NewRedisNotifier 创建 Redis 通道
func NewRedisNotifier(publisher Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = "approvalflow:notifications"
	}
	return &RedisNotifier{publisher: publisher, channel: channel}
}

// Notify 发布 JSON 消息
func (n *RedisNotifier) Notify(ctx context.Context, title, body string) error {
	data, err := encodeMessage(Message{Title: title, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode redis payload: %w", err)
	}
	if err := n.publisher.Publish(ctx, n.channel, string(data)); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}
