package approvals

import (
	"errors"
	"net/http"

	"github.com/BaSui01/approvalflow/executor"
	"github.com/BaSui01/approvalflow/types"
)

var (
	// ErrDuplicateID 相同 ID 的请求已在等待中
	ErrDuplicateID = errors.New("approval id already pending")
	// ErrNotFound 请求不存在或已被终结
	ErrNotFound = errors.New("approval not found or already resolved")
	// ErrKindMismatch 结果与请求类型不兼容
	ErrKindMismatch = errors.New("outcome does not match approval kind")
	// ErrAlreadyResolved 结果单元已写入
	ErrAlreadyResolved = errors.New("approval already resolved")
	// ErrPersistence 存储写入失败
	ErrPersistence = errors.New("approval persistence failed")
	// ErrInvalidOutcome 结果形状非法
	ErrInvalidOutcome = errors.New("invalid approval outcome")
	// ErrInvalidRequest 请求缺少 ID 或截止时间不等于 created_at + 引擎超时
	ErrInvalidRequest = errors.New("invalid approval request")
)

// ToAPIError 将引擎与执行器错误转换为带 HTTP 状态码的结构化错误
func ToAPIError(err error) *types.Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := types.AsError(err); ok {
		return apiErr
	}

	var (
		code   types.ErrorCode
		status int
	)
	switch {
	case errors.Is(err, ErrNotFound):
		code, status = types.ErrApprovalNotFound, http.StatusNotFound
	case errors.Is(err, ErrKindMismatch):
		code, status = types.ErrApprovalKindMismatch, http.StatusUnprocessableEntity
	case errors.Is(err, ErrAlreadyResolved):
		code, status = types.ErrApprovalAlreadyResolved, http.StatusConflict
	case errors.Is(err, ErrDuplicateID):
		code, status = types.ErrApprovalDuplicateID, http.StatusConflict
	case errors.Is(err, ErrInvalidOutcome), errors.Is(err, ErrInvalidRequest):
		code, status = types.ErrInvalidRequest, http.StatusBadRequest
	case errors.Is(err, ErrPersistence):
		code, status = types.ErrApprovalPersistence, http.StatusInternalServerError
	case errors.Is(err, executor.ErrCancelled):
		code, status = types.ErrApprovalCancelled, http.StatusConflict
	case errors.Is(err, executor.ErrUnexpectedOutcome):
		code, status = types.ErrApprovalUnexpectedOutcome, http.StatusInternalServerError
	case errors.Is(err, executor.ErrRequestFailed):
		code, status = types.ErrApprovalRequestFailed, http.StatusInternalServerError
	default:
		code, status = types.ErrInternalError, http.StatusInternalServerError
	}

	return types.NewError(code, err.Error()).
		WithCause(err).
		WithHTTPStatus(status).
		WithRetryable(errors.Is(err, ErrPersistence))
}
