package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// 📦 GORM 模型
// =============================================================================
// 表结构与 internal/migration 中的 SQL 迁移保持一致，AutoMigrate 仅用于
// 开发环境与测试。

// Workspace 工作区
type Workspace struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      *string   `gorm:"size:255" json:"name,omitempty"`
	Branch    string    `gorm:"size:255;not null" json:"branch"`
	CreatedAt time.Time `json:"created_at"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// ExecutionProcess 执行进程，属于一个工作区
type ExecutionProcess struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string    `gorm:"size:64;not null;index:idx_execution_processes_workspace_id" json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`

	// 关联
	Workspace *Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
}

func (ExecutionProcess) TableName() string {
	return "execution_processes"
}

// ApprovalRecord 审批记录行
type ApprovalRecord struct {
	ID                 string     `gorm:"primaryKey;size:64" json:"id"`
	ToolName           string     `gorm:"size:255;not null" json:"tool_name"`
	ToolInput          string     `gorm:"type:text;not null" json:"tool_input"`
	ToolCallID         string     `gorm:"size:255;not null" json:"tool_call_id"`
	ExecutionProcessID string     `gorm:"size:64;not null;index:idx_approvals_execution_process_id" json:"execution_process_id"`
	Kind               string     `gorm:"size:32;not null" json:"kind"`
	Status             string     `gorm:"size:32;not null;index:idx_approvals_status" json:"status"`
	Reason             *string    `gorm:"type:text" json:"reason,omitempty"`
	Answers            *string    `gorm:"type:text" json:"answers,omitempty"` // JSON 编码的 []types.QuestionAnswer
	Resolver           string     `gorm:"size:32;not null" json:"resolver"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	TimeoutAt          time.Time  `gorm:"not null" json:"timeout_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (ApprovalRecord) TableName() string {
	return "approvals"
}

// newRecordRow 由请求构建 pending 行
func newRecordRow(req types.ApprovalRequest, kind types.ApprovalKind) *ApprovalRecord {
	input := string(req.ToolInput)
	if input == "" {
		input = "null"
	}
	return &ApprovalRecord{
		ID:                 req.ID,
		ToolName:           req.ToolName,
		ToolInput:          input,
		ToolCallID:         req.ToolCallID,
		ExecutionProcessID: req.ExecutionProcessID,
		Kind:               string(kind),
		Status:             string(approvals.RecordPending),
		CreatedAt:          req.CreatedAt.UTC(),
		TimeoutAt:          req.TimeoutAt.UTC(),
	}
}

// toDomain 转换为领域记录
func (r *ApprovalRecord) toDomain() (*approvals.ApprovalRecord, error) {
	rec := &approvals.ApprovalRecord{
		ID:                 r.ID,
		ToolName:           r.ToolName,
		ToolInput:          json.RawMessage(r.ToolInput),
		ToolCallID:         r.ToolCallID,
		ExecutionProcessID: r.ExecutionProcessID,
		Kind:               types.ApprovalKind(r.Kind),
		Status:             approvals.RecordStatus(r.Status),
		Reason:             r.Reason,
		Resolver:           types.Resolver(r.Resolver),
		CreatedAt:          r.CreatedAt,
		TimeoutAt:          r.TimeoutAt,
		ResolvedAt:         r.ResolvedAt,
	}
	if r.Answers != nil {
		if err := json.Unmarshal([]byte(*r.Answers), &rec.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
		}
	}
	return rec, nil
}

// resolutionColumns 终态写入的列
func resolutionColumns(outcome types.ApprovalOutcome, resolver types.Resolver, at time.Time) (map[string]any, error) {
	cols := map[string]any{
		"status":      string(approvals.RecordStatusOf(outcome)),
		"reason":      outcome.Reason,
		"answers":     nil,
		"resolver":    string(resolver),
		"resolved_at": at.UTC(),
	}
	if outcome.Answers != nil {
		data, err := json.Marshal(outcome.Answers)
		if err != nil {
			return nil, fmt.Errorf("encode answers: %w", err)
		}
		answers := string(data)
		cols["answers"] = &answers
	}
	return cols, nil
}
