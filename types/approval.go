package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultApprovalTimeout 审批请求的默认超时时间（10 小时）
const DefaultApprovalTimeout = 36000 * time.Second

// =============================================================================
// 📋 审批请求
// =============================================================================

// ApprovalRequest 工具执行暂停时发起的审批请求，创建后不可变
type ApprovalRequest struct {
	ID                 string          `json:"id"`
	ToolName           string          `json:"tool_name"`
	ToolInput          json.RawMessage `json:"tool_input"`
	ToolCallID         string          `json:"tool_call_id"`
	ExecutionProcessID string          `json:"execution_process_id"`
	CreatedAt          time.Time       `json:"created_at"`
	TimeoutAt          time.Time       `json:"timeout_at"`
}

// CreateApprovalRequest 审批请求草稿
type CreateApprovalRequest struct {
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ToolCallID string          `json:"tool_call_id"`
}

// NewApprovalRequest 从草稿构建审批请求，分配 ID 与时间戳
func NewApprovalRequest(draft CreateApprovalRequest, executionProcessID string, now time.Time, timeout time.Duration) ApprovalRequest {
	if timeout <= 0 {
		timeout = DefaultApprovalTimeout
	}
	now = now.UTC()
	input := draft.ToolInput
	if len(input) == 0 {
		input = json.RawMessage("null")
	}
	return ApprovalRequest{
		ID:                 uuid.NewString(),
		ToolName:           draft.ToolName,
		ToolInput:          input,
		ToolCallID:         draft.ToolCallID,
		ExecutionProcessID: executionProcessID,
		CreatedAt:          now,
		TimeoutAt:          now.Add(timeout),
	}
}

// Expired 判断请求在 now 时刻是否已过期
func (r ApprovalRequest) Expired(now time.Time) bool {
	return !now.Before(r.TimeoutAt)
}

// =============================================================================
// 🏷️ 请求类型
// =============================================================================

// ApprovalKind 审批请求类型，创建时确定
type ApprovalKind string

const (
	ApprovalKindPermission ApprovalKind = "permission"
	ApprovalKindQuestion   ApprovalKind = "question"
)

// Valid 检查类型是否合法
func (k ApprovalKind) Valid() bool {
	return k == ApprovalKindPermission || k == ApprovalKindQuestion
}

// Accepts 判断结果是否与该类型兼容
func (k ApprovalKind) Accepts(outcome ApprovalOutcome) bool {
	switch outcome.Status {
	case OutcomeTimedOut:
		return k.Valid()
	case OutcomeApproved, OutcomeDenied:
		return k == ApprovalKindPermission
	case OutcomeAnswered:
		return k == ApprovalKindQuestion
	default:
		return false
	}
}

// Resolver 标识是谁终结了请求，仅用于日志、指标、持久化与事件
type Resolver string

const (
	ResolverResponse Resolver = "response"
	ResolverTimeout  Resolver = "timeout"
	ResolverCancel   Resolver = "cancel"
)

// =============================================================================
// 🎯 审批结果
// =============================================================================

// OutcomeStatus 结果标签
type OutcomeStatus string

const (
	OutcomeApproved OutcomeStatus = "approved"
	OutcomeDenied   OutcomeStatus = "denied"
	OutcomeAnswered OutcomeStatus = "answered"
	OutcomeTimedOut OutcomeStatus = "timed_out"
)

// QuestionAnswer 问题与选中的一个或多个答案
type QuestionAnswer struct {
	Question string   `json:"question"`
	Answer   []string `json:"answer"`
}

// ApprovalOutcome 请求的终态值。Reason 仅用于 denied，Answers 仅用于 answered。
type ApprovalOutcome struct {
	Status  OutcomeStatus
	Reason  *string
	Answers []QuestionAnswer
}

// Approved 构造批准结果
func Approved() ApprovalOutcome { return ApprovalOutcome{Status: OutcomeApproved} }

// Denied 构造拒绝结果，reason 为空表示未给出理由
func Denied(reason string) ApprovalOutcome {
	o := ApprovalOutcome{Status: OutcomeDenied}
	if reason != "" {
		o.Reason = &reason
	}
	return o
}

// Answered 构造回答结果
func Answered(answers ...QuestionAnswer) ApprovalOutcome {
	if answers == nil {
		answers = []QuestionAnswer{}
	}
	return ApprovalOutcome{Status: OutcomeAnswered, Answers: answers}
}

// TimedOut 构造超时结果（取消同样以超时呈现给等待方）
func TimedOut() ApprovalOutcome { return ApprovalOutcome{Status: OutcomeTimedOut} }

// Validate 检查结果形状
func (o ApprovalOutcome) Validate() error {
	switch o.Status {
	case OutcomeApproved, OutcomeTimedOut:
		if o.Reason != nil || o.Answers != nil {
			return fmt.Errorf("outcome %q carries no payload", o.Status)
		}
	case OutcomeDenied:
		if o.Answers != nil {
			return fmt.Errorf("outcome %q carries no answers", o.Status)
		}
	case OutcomeAnswered:
		if o.Reason != nil {
			return fmt.Errorf("outcome %q carries no reason", o.Status)
		}
	default:
		return fmt.Errorf("unknown outcome status %q", o.Status)
	}
	return nil
}

// ReasonText 返回拒绝理由，未设置时为空串
func (o ApprovalOutcome) ReasonText() string {
	if o.Reason == nil {
		return ""
	}
	return *o.Reason
}

// String 用于日志与分析事件
func (o ApprovalOutcome) String() string {
	switch o.Status {
	case OutcomeDenied:
		if o.Reason != nil {
			return fmt.Sprintf("Denied { reason: %q }", *o.Reason)
		}
		return "Denied"
	case OutcomeAnswered:
		return fmt.Sprintf("Answered { answers: %d }", len(o.Answers))
	case OutcomeApproved:
		return "Approved"
	case OutcomeTimedOut:
		return "TimedOut"
	default:
		return string(o.Status)
	}
}

type outcomeWire struct {
	Status  OutcomeStatus     `json:"status"`
	Reason  *string           `json:"reason,omitempty"`
	Answers *[]QuestionAnswer `json:"answers,omitempty"`
}

// MarshalJSON 以 status 为标签输出
func (o ApprovalOutcome) MarshalJSON() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	w := outcomeWire{Status: o.Status, Reason: o.Reason}
	if o.Status == OutcomeAnswered {
		answers := o.Answers
		if answers == nil {
			answers = []QuestionAnswer{}
		}
		w.Answers = &answers
	}
	return json.Marshal(w)
}

// UnmarshalJSON 解析带标签的结果，拒绝未知标签
func (o *ApprovalOutcome) UnmarshalJSON(data []byte) error {
	var w outcomeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := ApprovalOutcome{Status: w.Status}
	switch w.Status {
	case OutcomeApproved, OutcomeTimedOut:
	case OutcomeDenied:
		out.Reason = w.Reason
	case OutcomeAnswered:
		if w.Answers == nil {
			return fmt.Errorf("outcome %q requires answers", w.Status)
		}
		out.Answers = *w.Answers
	default:
		return fmt.Errorf("unknown outcome status %q", w.Status)
	}
	*o = out
	return nil
}

// ApprovalResponse 人工提交的响应
type ApprovalResponse struct {
	ExecutionProcessID string          `json:"execution_process_id"`
	Status             ApprovalOutcome `json:"status"`
}

// =============================================================================
// 🔁 面向执行器的状态
// =============================================================================

// PermissionState 权限请求状态标签
type PermissionState string

const (
	PermissionPending  PermissionState = "pending"
	PermissionApproved PermissionState = "approved"
	PermissionDenied   PermissionState = "denied"
	PermissionTimedOut PermissionState = "timed_out"
)

// ApprovalStatus 权限请求（批准/拒绝）的状态
type ApprovalStatus struct {
	Status PermissionState `json:"status"`
	Reason *string         `json:"reason,omitempty"`
}

// QuestionState 问答请求状态标签
type QuestionState string

const (
	QuestionAnswered QuestionState = "answered"
	QuestionTimedOut QuestionState = "timed_out"
)

// QuestionStatus 问答请求的状态
type QuestionStatus struct {
	Status  QuestionState    `json:"status"`
	Answers []QuestionAnswer `json:"answers,omitempty"`
}
