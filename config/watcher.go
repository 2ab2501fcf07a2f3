// 配置文件变更监听与重载。
//
// 轮询配置文件的修改时间，防抖后重新加载并校验，再通知回调。
// 只有部分字段在运行期生效（例如日志级别），其余字段需要重启。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 在新配置通过校验后调用
type ReloadCallback func(oldCfg, newCfg *Config)

// --- 监听器选项 ---

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is stat'ed
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 监听器实现 ---

// Watcher 监听单个配置文件并在变更时重新加载
type Watcher struct {
	mu sync.RWMutex

	loader        *Loader
	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *zap.Logger
}

// NewWatcher 创建配置监听器，current 为启动时已加载的配置
func NewWatcher(loader *Loader, current *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, errors.New("watcher requires a loader with a config path")
	}
	if current == nil {
		return nil, errors.New("watcher requires the current config")
	}

	w := &Watcher{
		loader:        loader,
		path:          loader.configPath,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		current:       current,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", w.path))

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat path %s: %w", w.path, err)
	}

	return w, nil
}

// OnReload registers a callback for successful reloads
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current 返回最近一次生效的配置
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.loop(ctx, w.stopCh, w.doneCh)

	w.logger.Info("config watcher started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops the watcher and waits for the poll loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.logger.Info("config watcher stopped")
}

func (w *Watcher) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if w.changed() {
				debounce = time.After(w.debounceDelay)
			}
		case <-debounce:
			debounce = nil
			if err := w.Reload(); err != nil {
				w.logger.Warn("config reload rejected", zap.Error(err))
			}
		}
	}
}

// changed 报告文件修改时间是否前进
func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !info.ModTime().After(w.lastMod) {
		return false
	}
	w.lastMod = info.ModTime()
	return true
}

// Reload 立即重新加载配置文件。校验失败时保留旧配置并返回错误。
func (w *Watcher) Reload() error {
	next, err := w.loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	for _, cb := range callbacks {
		cb(prev, next)
	}
	return nil
}
