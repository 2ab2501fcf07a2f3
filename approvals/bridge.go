package approvals

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/executor"
	"github.com/BaSui01/approvalflow/notification"
	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// 🌉 执行器桥接
// =============================================================================

// ExecutorApprovalBridge 把审批引擎适配为某个执行进程的 ApprovalService
type ExecutorApprovalBridge struct {
	approvals          *Approvals
	store              Store
	notifier           notification.Notifier
	executionProcessID string
	logger             *zap.Logger
}

var _ executor.ApprovalService = (*ExecutorApprovalBridge)(nil)

// NewExecutorApprovalBridge 创建桥接，notifier 可为 nil
func NewExecutorApprovalBridge(approvals *Approvals, store Store, notifier notification.Notifier, executionProcessID string, logger *zap.Logger) *ExecutorApprovalBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutorApprovalBridge{
		approvals:          approvals,
		store:              store,
		notifier:           notifier,
		executionProcessID: executionProcessID,
		logger: logger.With(
			zap.String("component", "executor_approval_bridge"),
			zap.String("execution_process_id", executionProcessID),
		),
	}
}

// RequestToolApproval 请求工具执行许可，阻塞直到决策、超时或 ctx 取消
func (b *ExecutorApprovalBridge) RequestToolApproval(ctx context.Context, toolName string, toolInput json.RawMessage, toolCallID string) (types.ApprovalStatus, error) {
	outcome, err := b.request(ctx, types.ApprovalKindPermission, toolName, toolInput, toolCallID)
	if err != nil {
		return types.ApprovalStatus{}, err
	}

	switch outcome.Status {
	case types.OutcomeApproved:
		return types.ApprovalStatus{Status: types.PermissionApproved}, nil
	case types.OutcomeDenied:
		return types.ApprovalStatus{Status: types.PermissionDenied, Reason: outcome.Reason}, nil
	case types.OutcomeTimedOut:
		return types.ApprovalStatus{Status: types.PermissionTimedOut}, nil
	default:
		return types.ApprovalStatus{}, fmt.Errorf("%w: %s for tool approval", executor.ErrUnexpectedOutcome, outcome)
	}
}

// RequestQuestionAnswer 请求用户回答问题，阻塞直到决策、超时或 ctx 取消
func (b *ExecutorApprovalBridge) RequestQuestionAnswer(ctx context.Context, toolName string, toolInput json.RawMessage, toolCallID string) (types.QuestionStatus, error) {
	outcome, err := b.request(ctx, types.ApprovalKindQuestion, toolName, toolInput, toolCallID)
	if err != nil {
		return types.QuestionStatus{}, err
	}

	switch outcome.Status {
	case types.OutcomeAnswered:
		return types.QuestionStatus{Status: types.QuestionAnswered, Answers: outcome.Answers}, nil
	case types.OutcomeTimedOut:
		return types.QuestionStatus{Status: types.QuestionTimedOut}, nil
	default:
		return types.QuestionStatus{}, fmt.Errorf("%w: %s for question", executor.ErrUnexpectedOutcome, outcome)
	}
}

// request 创建请求、发送提醒并等待结果；ctx 先结束时取消请求并返回 ErrCancelled
func (b *ExecutorApprovalBridge) request(ctx context.Context, kind types.ApprovalKind, toolName string, toolInput json.RawMessage, toolCallID string) (types.ApprovalOutcome, error) {
	req := b.approvals.NewRequest(types.CreateApprovalRequest{
		ToolName:   toolName,
		ToolInput:  toolInput,
		ToolCallID: toolCallID,
	}, b.executionProcessID)

	req, waiter, err := b.approvals.CreateWithWaiter(ctx, req, kind)
	if err != nil {
		return types.ApprovalOutcome{}, fmt.Errorf("%w: %w", executor.ErrRequestFailed, err)
	}

	b.notify(ctx, toolName)

	select {
	case <-waiter.Done():
		outcome, _ := waiter.Outcome()
		return outcome, nil
	case <-ctx.Done():
		b.logger.Info("approval wait cancelled",
			zap.String("approval_id", req.ID),
			zap.String("tool_name", toolName),
			zap.Error(ctx.Err()),
		)
		b.approvals.Cancel(context.WithoutCancel(ctx), req.ID)
		return types.ApprovalOutcome{}, fmt.Errorf("%w: %s", executor.ErrCancelled, req.ID)
	}
}

// notify 尽力发送提醒，任何失败都不影响等待
func (b *ExecutorApprovalBridge) notify(ctx context.Context, toolName string) {
	if b.notifier == nil {
		return
	}

	label := b.workspaceLabel(ctx)
	title := fmt.Sprintf("Approval Needed: %s", label)
	body := fmt.Sprintf("Tool '%s' requires approval", toolName)

	if err := b.notifier.Notify(ctx, title, body); err != nil {
		b.logger.Warn("failed to send approval notification", zap.Error(err))
	}
}

func (b *ExecutorApprovalBridge) workspaceLabel(ctx context.Context) string {
	if b.store == nil {
		return (*Workspace)(nil).Label()
	}
	ec, err := b.store.LoadExecutionContext(ctx, b.executionProcessID)
	if err != nil {
		b.logger.Debug("execution context unavailable for notification", zap.Error(err))
		return (*Workspace)(nil).Label()
	}
	return ec.Workspace.Label()
}
