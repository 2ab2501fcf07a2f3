package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/approvalflow/analytics"
	"github.com/BaSui01/approvalflow/api/handlers"
	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/approvals/gormstore"
	"github.com/BaSui01/approvalflow/config"
	"github.com/BaSui01/approvalflow/executor"
	"github.com/BaSui01/approvalflow/internal/cache"
	"github.com/BaSui01/approvalflow/internal/database"
	"github.com/BaSui01/approvalflow/internal/metrics"
	"github.com/BaSui01/approvalflow/internal/server"
	"github.com/BaSui01/approvalflow/internal/telemetry"
	"github.com/BaSui01/approvalflow/notification"
)

// skipAuthPaths 不需要认证的端点
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装审批引擎及其外围组件
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	logLevel  zap.AtomicLevel
	telemetry *telemetry.Providers
	db        *gorm.DB
	loader    *config.Loader

	registry  *prometheus.Registry
	collector *metrics.Collector

	poolManager *database.PoolManager
	cache       *cache.Manager
	store       approvals.Store
	dispatcher  *notification.Dispatcher
	engine      *approvals.Approvals
	tracker     analytics.Tracker
	watcher     *config.Watcher

	group          *server.Group
	httpManager    *server.Manager
	metricsManager *server.Manager

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewServer 创建服务器。db 为 nil 时使用内存存储。
func NewServer(cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel, providers *telemetry.Providers, db *gorm.DB) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		logLevel:  level,
		telemetry: providers,
		db:        db,
		registry:  prometheus.NewRegistry(),
	}
}

// WithConfigWatch 启用配置文件监听，日志级别变更即时生效
func (s *Server) WithConfigWatch(loader *config.Loader) *Server {
	s.loader = loader
	return s
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化全部组件并启动 API 与 metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWith(s.registry, "approvalflow", s.logger)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"store", s.initStore},
		{"notification", s.initNotification},
		{"engine", s.initEngine},
		{"http", s.initHTTP},
		{"config watch", s.initConfigWatch},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			s.cleanup()
			return fmt.Errorf("failed to init %s: %w", step.name, err)
		}
	}

	if err := s.group.Start(); err != nil {
		s.cleanup()
		return err
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("database", s.cfg.Database.Driver),
		zap.Bool("redis", s.cache != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 选择持久化实现：GORM（sqlite/postgres/mysql）或内存，Redis 可用时叠加上下文缓存
func (s *Server) initStore(ctx context.Context) error {
	if s.db != nil {
		pm, err := database.NewPoolManager(s.db, database.PoolConfig{
			MaxOpenConns:        s.cfg.Database.MaxOpenConns,
			MaxIdleConns:        s.cfg.Database.MaxIdleConns,
			ConnMaxLifetime:     s.cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime:     s.cfg.Database.ConnMaxLifetime / 2,
			HealthCheckInterval: 30 * time.Second,
			Name:                s.cfg.Database.Driver,
		}, s.collector, s.logger)
		if err != nil {
			return err
		}
		s.poolManager = pm

		gs := gormstore.New(pm, s.logger)
		if err := gs.AutoMigrate(ctx); err != nil {
			return err
		}
		s.store = gs
	} else {
		s.store = approvals.NewMemoryStore()
	}

	if s.cfg.Redis.Enabled {
		cm, err := cache.NewManager(cache.Config{
			Addr:                s.cfg.Redis.Addr,
			Password:            s.cfg.Redis.Password,
			DB:                  s.cfg.Redis.DB,
			DefaultTTL:          s.cfg.Redis.ContextTTL,
			KeyPrefix:           "approvalflow:",
			MaxRetries:          3,
			PoolSize:            s.cfg.Redis.PoolSize,
			MinIdleConns:        s.cfg.Redis.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
			TLS:                 s.cfg.Redis.TLS,
		}, s.logger)
		if err != nil {
			// 缓存是可选的，不可用时直接访问存储
			s.logger.Warn("Redis not available, execution context cache disabled", zap.Error(err))
		} else {
			s.cache = cm
			s.store = approvals.NewCachingStore(s.store, cm, s.cfg.Redis.ContextTTL, s.logger)
		}
	}
	return nil
}

// initNotification 构建通知通道：日志始终开启，webhook 与 Redis 频道按配置启用
func (s *Server) initNotification(context.Context) error {
	channels := []notification.Channel{
		{Name: "log", Notifier: notification.NewLogNotifier(s.logger)},
	}
	if s.cfg.Notification.Enabled {
		if s.cfg.Notification.WebhookURL != "" {
			channels = append(channels, notification.Channel{
				Name:     "webhook",
				Notifier: notification.NewWebhookNotifier(s.cfg.Notification.WebhookURL, s.cfg.Notification.WebhookTimeout),
			})
		}
		if s.cfg.Notification.RedisChannel != "" {
			if s.cache == nil {
				s.logger.Warn("Redis notification channel configured but Redis is unavailable",
					zap.String("channel", s.cfg.Notification.RedisChannel))
			} else {
				channels = append(channels, notification.Channel{
					Name:     "redis",
					Notifier: notification.NewRedisNotifier(s.cache, s.cfg.Notification.RedisChannel),
				})
			}
		}
	}

	s.dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		Workers:     s.cfg.Notification.Workers,
		QueueSize:   s.cfg.Notification.QueueSize,
		SendTimeout: s.cfg.Notification.WebhookTimeout,
	}, s.collector, s.logger, channels...)
	return nil
}

// initEngine 创建审批引擎并启动超时扫描
func (s *Server) initEngine(ctx context.Context) error {
	s.engine = approvals.New(s.store, s.logger,
		approvals.WithTimeout(s.cfg.Approvals.Timeout),
		approvals.WithSweepInterval(s.cfg.Approvals.SweepInterval),
		approvals.WithShards(s.cfg.Approvals.Shards),
		approvals.WithMetrics(s.collector),
		approvals.WithTracer(s.telemetry.Tracer("approvalflow/approvals")),
	)
	if err := s.engine.Start(ctx); err != nil {
		return err
	}

	s.tracker = analytics.Metered(analytics.MultiTracker{
		analytics.NewLogTracker(s.logger),
		otelTracker{analytics.NewOTelTracker()},
	}, s.collector)
	return nil
}

// otelTracker 忽略没有活动 span 的情况（采样关闭时的常态）
type otelTracker struct {
	analytics.Tracker
}

func (t otelTracker) Track(ctx context.Context, event string, props analytics.Props) error {
	if err := t.Tracker.Track(ctx, event, props); err != nil && !errors.Is(err, analytics.ErrNoSpan) {
		return err
	}
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// Handler 构建带中间件链的 API handler
func (s *Server) Handler(ctx context.Context) http.Handler {
	health := handlers.NewHealthHandler(s.logger)
	health.SetPendingCounter(s.engine.Len)
	if s.poolManager != nil {
		health.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.poolManager.Ping))
	}
	if s.cache != nil {
		health.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cache.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewApprovalHandler(s.engine, s.store, s.tracker, s.logger).Register(mux)
	handlers.NewStreamHandler(s.engine, s.cfg.Approvals.EventBuffer, s.cfg.Server.CORSAllowedOrigins, s.logger).Register(mux)

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(s.telemetry.Tracer("approvalflow/http")),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	switch {
	case s.cfg.JWT.Enabled:
		chain = append(chain, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	case len(s.cfg.Server.APIKeys) > 0:
		chain = append(chain, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	default:
		s.logger.Warn("API authentication disabled: no API keys or JWT configured")
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, chain...)
}

// initHTTP 创建 API 与 metrics 服务器
func (s *Server) initHTTP(ctx context.Context) error {
	s.httpManager = server.NewManager(s.Handler(ctx), server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.WriteTimeout,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
	}

	s.group = server.NewGroup(s.logger, s.httpManager, s.metricsManager)
	return nil
}

// initConfigWatch 监听配置文件，只有日志级别支持热更新，其余变更需要重启
func (s *Server) initConfigWatch(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	w, err := config.NewWatcher(s.loader, s.cfg, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	w.OnReload(s.applyReload)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// applyReload 应用新配置中可热更新的部分
func (s *Server) applyReload(oldCfg, newCfg *config.Config) {
	if oldCfg.Log.Level != newCfg.Log.Level {
		level := parseLevel(newCfg.Log.Level)
		s.logLevel.SetLevel(level)
		s.logger.Info("log level changed", zap.Stringer("level", level))
	}
	if oldCfg.Database != newCfg.Database || oldCfg.Approvals != newCfg.Approvals ||
		oldCfg.Server.HTTPPort != newCfg.Server.HTTPPort {
		s.logger.Warn("configuration changed; restart required for non-logging settings to take effect")
	}
}

// =============================================================================
// 🔌 执行器接入
// =============================================================================

// executionRegistrar 可登记执行进程上下文的存储
type executionRegistrar interface {
	RegisterExecutionProcess(ctx context.Context, ec approvals.ExecutionContext) error
}

// ApprovalService 为一个执行进程返回审批服务。存储支持时先登记进程与工作区，用于通知中的工作区标签。
func (s *Server) ApprovalService(ctx context.Context, ec approvals.ExecutionContext) (executor.ApprovalService, error) {
	switch st := unwrapStore(s.store).(type) {
	case executionRegistrar:
		if err := st.RegisterExecutionProcess(ctx, ec); err != nil {
			return nil, fmt.Errorf("register execution process: %w", err)
		}
	case *approvals.MemoryStore:
		st.PutExecutionContext(ec)
	}
	return approvals.NewExecutorApprovalBridge(s.engine, s.store, s.dispatcher, ec.ExecutionProcessID, s.logger), nil
}

func unwrapStore(st approvals.Store) approvals.Store {
	if cs, ok := st.(*approvals.CachingStore); ok {
		return cs.Store
	}
	return st
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	s.group.WaitForShutdown()
	s.cleanup()
}

// Shutdown 关闭服务器并释放全部组件
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.group != nil {
		err = s.group.Shutdown(ctx)
	}
	s.cleanup()
	return err
}

// cleanup 按依赖逆序释放组件，可重复调用
func (s *Server) cleanup() {
	s.stopOnce.Do(func() {
		s.logger.Info("Starting graceful shutdown...")

		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.engine != nil {
			s.engine.Stop()
		}
		if s.dispatcher != nil {
			s.dispatcher.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
		if s.cache != nil {
			if err := s.cache.Close(); err != nil {
				s.logger.Error("Redis close error", zap.Error(err))
			}
		}
		if s.poolManager != nil {
			if err := s.poolManager.Close(); err != nil {
				s.logger.Error("Database close error", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Warn("Telemetry shutdown error", zap.Error(err))
		}

		s.logger.Info("Graceful shutdown completed")
	})
}
