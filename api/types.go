package api

import (
	"time"

	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// 🏥 Health
// =============================================================================

// ServiceHealthResponse /health、/healthz、/ready 的响应体
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // healthy | unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Pending   *int                   `json:"pending_approvals,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个依赖检查结果
type CheckResult struct {
	Status  string `json:"status"` // pass | fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// VersionInfo /version 的响应数据
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// =============================================================================
// ✅ Approvals
// =============================================================================

// PendingApprovalItem 等待中请求的列表项
type PendingApprovalItem struct {
	types.ApprovalRequest
	Kind types.ApprovalKind `json:"kind"`
}

// PendingApprovalList GET /api/v1/approvals 的响应数据
type PendingApprovalList struct {
	Items []PendingApprovalItem `json:"items"`
	Total int                   `json:"total"`
}

// RespondRequest POST /api/v1/approvals/{id}/respond 的请求体
type RespondRequest = types.ApprovalResponse

// StreamMessage websocket 推送的单条消息
type StreamMessage struct {
	Type       string                 `json:"type"` // created | resolved
	ApprovalID string                 `json:"approval_id"`
	Kind       types.ApprovalKind     `json:"kind"`
	Request    types.ApprovalRequest  `json:"request"`
	Outcome    *types.ApprovalOutcome `json:"outcome,omitempty"`
	Resolver   types.Resolver         `json:"resolver,omitempty"`
	At         time.Time              `json:"at"`
}
