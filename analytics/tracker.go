// Package analytics 为审批响应等产品事件提供埋点接口。
//
// 埋点失败只影响观测数据，调用方记录日志后继续执行。
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EventApprovalResponded 人工响应审批后发出的事件
const EventApprovalResponded = "approval_responded"

// Props 事件属性
type Props map[string]any

// Tracker 埋点接口
type Tracker interface {
	Track(ctx context.Context, event string, props Props) error
}

// TrackerFunc 函数适配器
type TrackerFunc func(ctx context.Context, event string, props Props) error

// Track 实现 Tracker
func (f TrackerFunc) Track(ctx context.Context, event string, props Props) error {
	return f(ctx, event, props)
}

// =============================================================================
// 📝 日志埋点
// =============================================================================

// LogTracker 把事件写入结构化日志
type LogTracker struct {
	logger *zap.Logger
}

// NewLogTracker 创建日志埋点
func NewLogTracker(logger *zap.Logger) *LogTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTracker{logger: logger.With(zap.String("component", "analytics"))}
}

// Track 实现 Tracker
func (t *LogTracker) Track(_ context.Context, event string, props Props) error {
	fields := make([]zap.Field, 0, len(props)+1)
	fields = append(fields, zap.String("event", event))
	for _, k := range sortedKeys(props) {
		fields = append(fields, zap.Any(k, props[k]))
	}
	t.logger.Info("analytics event", fields...)
	return nil
}

// =============================================================================
// 🔭 OpenTelemetry 埋点
// =============================================================================

// ErrNoSpan 上下文中没有正在记录的 span
var ErrNoSpan = errors.New("analytics: no recording span in context")

// OTelTracker 把事件作为 span event 附加到当前 span
type OTelTracker struct{}

// NewOTelTracker 创建 OpenTelemetry 埋点
func NewOTelTracker() *OTelTracker {
	return &OTelTracker{}
}

// Track 实现 Tracker
func (t *OTelTracker) Track(ctx context.Context, event string, props Props) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return ErrNoSpan
	}
	span.AddEvent(event, trace.WithAttributes(attributesOf(props)...))
	return nil
}

// attributesOf 将属性转换为 OTel 属性，未知类型按 %v 格式化
func attributesOf(props Props) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(props))
	for _, k := range sortedKeys(props) {
		switch v := props[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, v))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(k, v.String()))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
		}
	}
	return attrs
}

// =============================================================================
// 🔀 组合
// =============================================================================

// MultiTracker 依次调用所有 Tracker，汇总错误
type MultiTracker []Tracker

// Track 实现 Tracker
func (m MultiTracker) Track(ctx context.Context, event string, props Props) error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.Track(ctx, event, props); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder 埋点结果指标，由 metrics.Collector 实现
type Recorder interface {
	RecordAnalyticsEvent(event, status string)
}

// Metered 在 Tracker 外层记录 ok / error 计数
func Metered(t Tracker, r Recorder) Tracker {
	return TrackerFunc(func(ctx context.Context, event string, props Props) error {
		err := t.Track(ctx, event, props)
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.RecordAnalyticsEvent(event, status)
		return err
	})
}

func sortedKeys(props Props) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
