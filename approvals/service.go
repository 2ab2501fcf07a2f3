package approvals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// ⚙️ 选项
// =============================================================================

// Option 引擎选项
type Option func(*Approvals)

// WithTimeout 新请求的超时时长
func WithTimeout(d time.Duration) Option {
	return func(a *Approvals) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSweepInterval 过期扫描间隔
func WithSweepInterval(d time.Duration) Option {
	return func(a *Approvals) {
		if d > 0 {
			a.sweepInterval = d
		}
	}
}

// WithShards 注册表分片数
func WithShards(n int) Option {
	return func(a *Approvals) {
		if n > 0 {
			a.shards = n
		}
	}
}

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(a *Approvals) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMetrics 设置指标记录器
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Approvals) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) Option {
	return func(a *Approvals) {
		if t != nil {
			a.tracer = t
		}
	}
}

// =============================================================================
// 🎛️ 引擎门面
// =============================================================================

// ResponseContext 响应成功后返回给调用方的请求上下文
type ResponseContext struct {
	ToolName           string             `json:"tool_name"`
	ExecutionProcessID string             `json:"execution_process_id"`
	Kind               types.ApprovalKind `json:"kind"`
}

// Approvals 审批协调引擎。每个请求由响应、超时或取消中最先发生的一方恰好终结一次。
type Approvals struct {
	store    Store
	registry *Registry
	sweeper  *Sweeper
	events   *eventHub
	logger   *zap.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	now      func() time.Time

	timeout       time.Duration
	sweepInterval time.Duration
	shards        int
}

// New 创建引擎
func New(store Store, logger *zap.Logger, opts ...Option) *Approvals {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Approvals{
		store:         store,
		events:        newEventHub(),
		logger:        logger.With(zap.String("component", "approvals")),
		metrics:       nopMetrics{},
		tracer:        otel.Tracer("approvalflow/approvals"),
		now:           time.Now,
		timeout:       types.DefaultApprovalTimeout,
		sweepInterval: DefaultSweepInterval,
		shards:        DefaultShards,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registry = NewRegistry(a.shards)
	a.sweeper = NewSweeper(a.sweepInterval, a.now, a.SweepExpired, logger)
	return a
}

// NewRequest 以引擎的时钟与超时构建请求
func (a *Approvals) NewRequest(draft types.CreateApprovalRequest, executionProcessID string) types.ApprovalRequest {
	return types.NewApprovalRequest(draft, executionProcessID, a.now(), a.timeout)
}

// CreateWithWaiter 先持久化再登记请求，返回请求与等待句柄。
// req 必须由 NewRequest 构建；缺少 ID 或截止时间不符时返回 ErrInvalidRequest。
// 持久化失败时返回 ErrPersistence，且不登记任何条目。
func (a *Approvals) CreateWithWaiter(ctx context.Context, req types.ApprovalRequest, kind types.ApprovalKind) (types.ApprovalRequest, Waiter, error) {
	ctx, span := a.tracer.Start(ctx, "approvals.create", trace.WithAttributes(
		attribute.String("approval.id", req.ID),
		attribute.String("approval.kind", string(kind)),
		attribute.String("approval.tool_name", req.ToolName),
	))
	defer span.End()

	if !kind.Valid() {
		err := fmt.Errorf("invalid approval kind %q", kind)
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalRequest{}, Waiter{}, err
	}
	if err := a.validateRequest(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalRequest{}, Waiter{}, err
	}
	if _, err := a.registry.Get(req.ID); err == nil {
		err = fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalRequest{}, Waiter{}, err
	}

	if err := a.store.Save(ctx, req, kind); err != nil {
		a.metrics.RecordPersistenceFailure("save")
		a.logger.Error("failed to persist approval request",
			zap.String("approval_id", req.ID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return types.ApprovalRequest{}, Waiter{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	entry := NewPendingEntry(req, kind)
	if err := a.registry.Insert(entry); err != nil {
		// 并发创建落败：行已写入但无人能终结它
		if uerr := a.store.UpdateStatus(ctx, req.ID, types.TimedOut(), types.ResolverCancel); uerr != nil {
			a.metrics.RecordPersistenceFailure("update_status")
			a.logger.Error("failed to close orphaned approval record",
				zap.String("approval_id", req.ID),
				zap.Error(uerr),
			)
		}
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalRequest{}, Waiter{}, err
	}

	a.metrics.RecordApprovalCreated(string(kind))
	a.metrics.SetApprovalsPending(a.registry.Len())
	a.publish(Event{Type: EventCreated, ApprovalID: req.ID, Kind: kind, Request: req, At: a.now()})

	a.logger.Info("approval request created",
		zap.String("approval_id", req.ID),
		zap.String("kind", string(kind)),
		zap.String("tool_name", req.ToolName),
		zap.String("execution_process_id", req.ExecutionProcessID),
		zap.Time("timeout_at", req.TimeoutAt),
	)

	return req, entry.Waiter(), nil
}

func (a *Approvals) validateRequest(req types.ApprovalRequest) error {
	switch {
	case req.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	case req.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", ErrInvalidRequest)
	case !req.TimeoutAt.Equal(req.CreatedAt.Add(a.timeout)):
		return fmt.Errorf("%w: timeout_at must be created_at + %s", ErrInvalidRequest, a.timeout)
	}
	return nil
}

// Respond 以人工响应终结请求，返回结果与请求上下文。
// 未知或已终结的 ID 返回 ErrNotFound；类型不兼容返回 ErrKindMismatch 且请求保持等待。
func (a *Approvals) Respond(ctx context.Context, id string, resp types.ApprovalResponse) (types.ApprovalOutcome, ResponseContext, error) {
	ctx, span := a.tracer.Start(ctx, "approvals.respond", trace.WithAttributes(
		attribute.String("approval.id", id),
		attribute.String("approval.status", string(resp.Status.Status)),
	))
	defer span.End()

	if err := resp.Status.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalOutcome{}, ResponseContext{}, fmt.Errorf("%w: %w", ErrInvalidOutcome, err)
	}

	entry, err := a.registry.Get(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalOutcome{}, ResponseContext{}, err
	}
	if resp.ExecutionProcessID != "" && resp.ExecutionProcessID != entry.Request.ExecutionProcessID {
		a.logger.Warn("response execution process differs from request",
			zap.String("approval_id", id),
			zap.String("request_execution_process_id", entry.Request.ExecutionProcessID),
			zap.String("response_execution_process_id", resp.ExecutionProcessID),
		)
	}

	entry, err = a.finish(ctx, id, resp.Status, types.ResolverResponse)
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			err = fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		span.SetStatus(codes.Error, err.Error())
		return types.ApprovalOutcome{}, ResponseContext{}, err
	}

	return resp.Status, ResponseContext{
		ToolName:           entry.Request.ToolName,
		ExecutionProcessID: entry.Request.ExecutionProcessID,
		Kind:               entry.Kind,
	}, nil
}

// Cancel 以 TimedOut 终结请求（resolver 为 cancel）。幂等，未知或已终结的 ID 为空操作。
func (a *Approvals) Cancel(ctx context.Context, id string) {
	ctx, span := a.tracer.Start(ctx, "approvals.cancel", trace.WithAttributes(
		attribute.String("approval.id", id),
	))
	defer span.End()

	if _, err := a.finish(ctx, id, types.TimedOut(), types.ResolverCancel); err != nil {
		a.logger.Debug("cancel ignored", zap.String("approval_id", id), zap.Error(err))
	}
}

// SweepExpired 对 now 时刻已过期的请求执行超时终结，返回终结数量。
// 与响应竞争失败的请求被静默跳过。
func (a *Approvals) SweepExpired(ctx context.Context, now time.Time) int {
	resolved := 0
	for _, id := range a.registry.Expired(now) {
		if _, err := a.finish(ctx, id, types.TimedOut(), types.ResolverTimeout); err == nil {
			resolved++
		}
	}
	return resolved
}

// Pending 列出等待中的请求
func (a *Approvals) Pending(filter ListFilter) []PendingApproval {
	return a.registry.List(filter)
}

// Len 等待中的请求数
func (a *Approvals) Len() int {
	return a.registry.Len()
}

// Subscribe 订阅生命周期事件，返回事件通道与退订函数。缓冲区满时事件被丢弃。
func (a *Approvals) Subscribe(buffer int) (<-chan Event, func()) {
	return a.events.subscribe(buffer)
}

// Start 启动过期扫描
func (a *Approvals) Start(ctx context.Context) error {
	return a.sweeper.Start(ctx)
}

// Stop 停止过期扫描并关闭所有订阅
func (a *Approvals) Stop() {
	a.sweeper.Stop()
	a.events.close()
}

// finish 是响应、超时与取消共用的终结路径。锁只在注册表内部持有，持久化在锁外进行。
func (a *Approvals) finish(ctx context.Context, id string, outcome types.ApprovalOutcome, resolver types.Resolver) (*PendingEntry, error) {
	entry, err := a.registry.ResolveAndRemove(id, outcome)
	if err != nil {
		return nil, err
	}

	now := a.now()
	a.metrics.RecordApprovalResolved(string(entry.Kind), string(outcome.Status), string(resolver), now.Sub(entry.Request.CreatedAt))
	a.metrics.SetApprovalsPending(a.registry.Len())

	if err := a.store.UpdateStatus(ctx, id, outcome, resolver); err != nil {
		a.metrics.RecordPersistenceFailure("update_status")
		a.logger.Error("failed to persist approval outcome",
			zap.String("approval_id", id),
			zap.String("resolver", string(resolver)),
			zap.Error(err),
		)
	}

	resolved := outcome
	a.publish(Event{
		Type:       EventResolved,
		ApprovalID: id,
		Kind:       entry.Kind,
		Request:    entry.Request,
		Outcome:    &resolved,
		Resolver:   resolver,
		At:         now,
	})

	a.logger.Info("approval resolved",
		zap.String("approval_id", id),
		zap.String("kind", string(entry.Kind)),
		zap.Stringer("outcome", outcome),
		zap.String("resolver", string(resolver)),
	)
	return entry, nil
}

func (a *Approvals) publish(ev Event) {
	if dropped := a.events.publish(ev); dropped > 0 {
		a.logger.Debug("approval event dropped for slow subscribers",
			zap.String("approval_id", ev.ApprovalID),
			zap.String("type", string(ev.Type)),
			zap.Int("dropped", dropped),
		)
	}
}
