package executor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/BaSui01/approvalflow/types"
)

var (
	// ErrRequestFailed 创建或持久化审批请求失败
	ErrRequestFailed = errors.New("approval request failed")
	// ErrCancelled 执行进程在决策到达前被取消
	ErrCancelled = errors.New("approval cancelled")
	// ErrUnexpectedOutcome 结果与请求类型不符
	ErrUnexpectedOutcome = errors.New("unexpected approval outcome")
)

// ApprovalService 执行器在继续执行前请求人工决策。
// 调用会阻塞，直到决策到达、请求超时或 ctx 被取消。
type ApprovalService interface {
	// RequestToolApproval 请求工具执行许可
	RequestToolApproval(ctx context.Context, toolName string, toolInput json.RawMessage, toolCallID string) (types.ApprovalStatus, error)
	// RequestQuestionAnswer 请求用户回答问题
	RequestQuestionAnswer(ctx context.Context, toolName string, toolInput json.RawMessage, toolCallID string) (types.QuestionStatus, error)
}

// NoopApprovalService 自动批准所有工具调用
type NoopApprovalService struct{}

var _ ApprovalService = NoopApprovalService{}

// RequestToolApproval 立即批准
func (NoopApprovalService) RequestToolApproval(ctx context.Context, _ string, _ json.RawMessage, _ string) (types.ApprovalStatus, error) {
	if err := ctx.Err(); err != nil {
		return types.ApprovalStatus{}, ErrCancelled
	}
	return types.ApprovalStatus{Status: types.PermissionApproved}, nil
}

// RequestQuestionAnswer 没有人可以回答，返回超时
func (NoopApprovalService) RequestQuestionAnswer(ctx context.Context, _ string, _ json.RawMessage, _ string) (types.QuestionStatus, error) {
	if err := ctx.Err(); err != nil {
		return types.QuestionStatus{}, ErrCancelled
	}
	return types.QuestionStatus{Status: types.QuestionTimedOut}, nil
}
