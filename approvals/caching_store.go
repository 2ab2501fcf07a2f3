package approvals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/approvalflow/internal/cache"
)

// ContextCache 执行进程上下文缓存，由 cache.Manager 实现
type ContextCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

var _ ContextCache = (*cache.Manager)(nil)

// CachingStore 在 Store 之上缓存 LoadExecutionContext 结果并合并并发查询。
// 缓存故障时直接回落到底层存储。
type CachingStore struct {
	Store
	cache  ContextCache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachingStore 创建缓存存储
func NewCachingStore(store Store, c ContextCache, ttl time.Duration, logger *zap.Logger) *CachingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingStore{
		Store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "caching_store")),
	}
}

func executionContextKey(executionProcessID string) string {
	return "exec_ctx:" + executionProcessID
}

// LoadExecutionContext 先查缓存，未命中时经 singleflight 查询底层存储并回填
func (s *CachingStore) LoadExecutionContext(ctx context.Context, executionProcessID string) (*ExecutionContext, error) {
	key := executionContextKey(executionProcessID)

	var cached ExecutionContext
	err := s.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !cache.IsCacheMiss(err) {
		s.logger.Warn("execution context cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		ec, err := s.Store.LoadExecutionContext(ctx, executionProcessID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetJSON(ctx, key, ec, s.ttl); err != nil {
			s.logger.Warn("execution context cache write failed", zap.String("key", key), zap.Error(err))
		}
		return ec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load execution context: %w", err)
	}

	ec := *v.(*ExecutionContext)
	return &ec, nil
}
