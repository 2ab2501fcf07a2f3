package approvals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval 默认扫描间隔
const DefaultSweepInterval = time.Second

// SweepFunc 对 now 时刻已过期的请求执行一次超时终结，返回终结数量
type SweepFunc func(ctx context.Context, now time.Time) int

// Sweeper 周期性扫描过期请求。请求最迟在 TimeoutAt + interval 之后被终结。
type Sweeper struct {
	interval time.Duration
	now      func() time.Time
	sweep    SweepFunc
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper 创建扫描器
func NewSweeper(interval time.Duration, now func() time.Time, sweep SweepFunc, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		interval: interval,
		now:      now,
		sweep:    sweep,
		logger:   logger.With(zap.String("component", "approval_sweeper")),
	}
}

// Start 在后台启动扫描循环
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx, s.stopCh, s.doneCh)

	s.logger.Info("approval sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop 停止扫描循环并等待其退出
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("approval sweeper stopped")
}

// Run 阻塞运行扫描循环直到 ctx 结束
func (s *Sweeper) Run(ctx context.Context) {
	s.run(ctx, nil, nil)
}

func (s *Sweeper) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	if done != nil {
		defer close(done)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := s.sweep(ctx, s.now()); n > 0 {
				s.logger.Debug("expired approvals resolved", zap.Int("count", n))
			}
		}
	}
}
