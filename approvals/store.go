package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// 🗄️ 存储接口
// =============================================================================

// Store 审批记录的持久化协作者
type Store interface {
	// Save 以 pending 状态插入新请求，ID 已存在时返回 ErrDuplicateID，不得覆盖
	Save(ctx context.Context, req types.ApprovalRequest, kind types.ApprovalKind) error
	// UpdateStatus 写入终态
	UpdateStatus(ctx context.Context, id string, outcome types.ApprovalOutcome, resolver types.Resolver) error
	// LoadExecutionContext 加载执行进程及其工作区
	LoadExecutionContext(ctx context.Context, executionProcessID string) (*ExecutionContext, error)
	// Get 读取持久化记录
	Get(ctx context.Context, id string) (*ApprovalRecord, error)
}

// Workspace 执行进程所属的工作区
type Workspace struct {
	ID     string  `json:"id"`
	Name   *string `json:"name,omitempty"`
	Branch string  `json:"branch"`
}

// Label 返回通知中展示的工作区名称
func (w *Workspace) Label() string {
	if w == nil {
		return unknownWorkspace
	}
	if w.Name != nil && *w.Name != "" {
		return *w.Name
	}
	if w.Branch != "" {
		return w.Branch
	}
	return unknownWorkspace
}

const unknownWorkspace = "Unknown workspace"

// ExecutionContext 执行进程上下文
type ExecutionContext struct {
	ExecutionProcessID string    `json:"execution_process_id"`
	Workspace          Workspace `json:"workspace"`
}

// RecordStatus 持久化记录状态
type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordApproved RecordStatus = "approved"
	RecordDenied   RecordStatus = "denied"
	RecordAnswered RecordStatus = "answered"
	RecordTimedOut RecordStatus = "timed_out"
)

// RecordStatusOf 结果对应的记录状态
func RecordStatusOf(outcome types.ApprovalOutcome) RecordStatus {
	return RecordStatus(outcome.Status)
}

// ApprovalRecord 审批记录的持久化视图
type ApprovalRecord struct {
	ID                 string                 `json:"id"`
	ToolName           string                 `json:"tool_name"`
	ToolInput          json.RawMessage        `json:"tool_input"`
	ToolCallID         string                 `json:"tool_call_id"`
	ExecutionProcessID string                 `json:"execution_process_id"`
	Kind               types.ApprovalKind     `json:"kind"`
	Status             RecordStatus           `json:"status"`
	Reason             *string                `json:"reason,omitempty"`
	Answers            []types.QuestionAnswer `json:"answers,omitempty"`
	Resolver           types.Resolver         `json:"resolver,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	TimeoutAt          time.Time              `json:"timeout_at"`
	ResolvedAt         *time.Time             `json:"resolved_at,omitempty"`
}

// NewPendingRecord 由请求构建 pending 记录
func NewPendingRecord(req types.ApprovalRequest, kind types.ApprovalKind) *ApprovalRecord {
	return &ApprovalRecord{
		ID:                 req.ID,
		ToolName:           req.ToolName,
		ToolInput:          req.ToolInput,
		ToolCallID:         req.ToolCallID,
		ExecutionProcessID: req.ExecutionProcessID,
		Kind:               kind,
		Status:             RecordPending,
		CreatedAt:          req.CreatedAt,
		TimeoutAt:          req.TimeoutAt,
	}
}

// Apply 将终态写入记录
func (r *ApprovalRecord) Apply(outcome types.ApprovalOutcome, resolver types.Resolver, at time.Time) {
	r.Status = RecordStatusOf(outcome)
	r.Reason = outcome.Reason
	r.Answers = outcome.Answers
	r.Resolver = resolver
	at = at.UTC()
	r.ResolvedAt = &at
}

// =============================================================================
// 🧠 内存存储
// =============================================================================

// MemoryStore 内存存储，用于测试与 memory 驱动
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*ApprovalRecord
	contexts map[string]ExecutionContext
	now      func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*ApprovalRecord),
		contexts: make(map[string]ExecutionContext),
		now:      time.Now,
	}
}

// PutExecutionContext 注册执行进程上下文
func (s *MemoryStore) PutExecutionContext(ec ExecutionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[ec.ExecutionProcessID] = ec
}

// Save 以 pending 状态保存新请求
func (s *MemoryStore) Save(_ context.Context, req types.ApprovalRequest, kind types.ApprovalKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[req.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}
	s.records[req.ID] = NewPendingRecord(req, kind)
	return nil
}

// UpdateStatus 写入终态
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, outcome types.ApprovalOutcome, resolver types.Resolver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Apply(outcome, resolver, s.now())
	return nil
}

// LoadExecutionContext 加载执行进程上下文
func (s *MemoryStore) LoadExecutionContext(_ context.Context, executionProcessID string) (*ExecutionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ec, ok := s.contexts[executionProcessID]
	if !ok {
		return nil, fmt.Errorf("execution process %s: %w", executionProcessID, ErrNotFound)
	}
	return &ec, nil
}

// Get 读取记录副本
func (s *MemoryStore) Get(_ context.Context, id string) (*ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}
