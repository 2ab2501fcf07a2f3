package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/internal/pool"
)

// Recorder 通知指标，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordNotification(channel, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string) {}

// Channel 命名的投递通道
type Channel struct {
	Name     string
	Notifier Notifier
}

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher 异步扇出通知到所有通道
type Dispatcher struct {
	channels    []Channel
	pool        *pool.GoroutinePool
	sendTimeout time.Duration
	metrics     Recorder
	logger      *zap.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(cfg DispatcherConfig, metrics Recorder, logger *zap.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	logger = logger.With(zap.String("component", "notification_dispatcher"))

	poolCfg := pool.DefaultGoroutinePoolConfig()
	if cfg.Workers > 0 {
		poolCfg.Workers = cfg.Workers
	}
	if cfg.QueueSize > 0 {
		poolCfg.QueueSize = cfg.QueueSize
	}
	poolCfg.PanicHandler = func(r any) {
		logger.Error("notification task panicked", zap.Any("panic", r))
	}

	return &Dispatcher{
		channels:    channels,
		pool:        pool.NewGoroutinePool(poolCfg),
		sendTimeout: cfg.SendTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// Notify 为每个通道提交一次投递任务后立即返回。
// 只在无法入队时返回错误，投递本身的失败不会返回给调用方。
func (d *Dispatcher) Notify(ctx context.Context, title, body string) error {
	detached := context.WithoutCancel(ctx)

	var firstErr error
	for _, ch := range d.channels {
		ch := ch
		err := d.pool.Submit(detached, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()

			if err := ch.Notifier.Notify(ctx, title, body); err != nil {
				d.metrics.RecordNotification(ch.Name, "failed")
				d.logger.Warn("notification delivery failed",
					zap.String("channel", ch.Name),
					zap.String("title", title),
					zap.Error(err),
				)
				return err
			}
			d.metrics.RecordNotification(ch.Name, "sent")
			return nil
		})
		if err != nil {
			d.metrics.RecordNotification(ch.Name, "dropped")
			d.logger.Warn("notification dropped", zap.String("channel", ch.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("enqueue %s notification: %w", ch.Name, err)
			}
		}
	}
	return firstErr
}

// Close 等待排队中的通知发送完毕
func (d *Dispatcher) Close() {
	d.pool.Close()
}
