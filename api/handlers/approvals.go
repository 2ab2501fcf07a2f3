package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/analytics"
	"github.com/BaSui01/approvalflow/api"
	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// ✅ 审批 Handler
// =============================================================================

// ApprovalEngine Handler 依赖的引擎能力
type ApprovalEngine interface {
	Respond(ctx context.Context, id string, resp types.ApprovalResponse) (types.ApprovalOutcome, approvals.ResponseContext, error)
	Pending(filter approvals.ListFilter) []approvals.PendingApproval
}

// RecordReader 持久化记录查询
type RecordReader interface {
	Get(ctx context.Context, id string) (*approvals.ApprovalRecord, error)
}

// ApprovalHandler 审批 HTTP 处理器
type ApprovalHandler struct {
	engine  ApprovalEngine
	records RecordReader
	tracker analytics.Tracker
	logger  *zap.Logger
}

// NewApprovalHandler 创建审批处理器。tracker 为 nil 时不上报分析事件。
func NewApprovalHandler(engine ApprovalEngine, records RecordReader, tracker analytics.Tracker, logger *zap.Logger) *ApprovalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalHandler{
		engine:  engine,
		records: records,
		tracker: tracker,
		logger:  logger.With(zap.String("component", "approval_handler")),
	}
}

// Register 在 mux 上注册审批路由
func (h *ApprovalHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/approvals/{id}/respond", h.HandleRespond)
	mux.HandleFunc("GET /api/v1/approvals", h.HandleList)
	mux.HandleFunc("GET /api/v1/approvals/{id}", h.HandleGet)
}

// HandleRespond 处理 POST /api/v1/approvals/{id}/respond
// 成功时返回终结结果，并上报 approval_responded 分析事件。
func (h *ApprovalHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "approval id is required", h.logger)
		return
	}

	var req api.RespondRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	outcome, rc, err := h.engine.Respond(r.Context(), id, req)
	if err != nil {
		WriteError(w, r, approvals.ToAPIError(err), h.logger)
		return
	}

	h.track(r.Context(), id, outcome, rc)
	WriteSuccess(w, r, outcome)
}

// track 上报失败只记录日志，不影响响应
func (h *ApprovalHandler) track(ctx context.Context, id string, outcome types.ApprovalOutcome, rc approvals.ResponseContext) {
	if h.tracker == nil {
		return
	}
	props := analytics.Props{
		"approval_id":          id,
		"status":               string(outcome.Status),
		"tool_name":            rc.ToolName,
		"execution_process_id": rc.ExecutionProcessID,
	}
	if err := h.tracker.Track(ctx, analytics.EventApprovalResponded, props); err != nil {
		h.logger.Warn("failed to track approval response",
			zap.String("approval_id", id),
			zap.Error(err),
		)
	}
}

// HandleList 处理 GET /api/v1/approvals?execution_process_id=&kind=
func (h *ApprovalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := approvals.ListFilter{
		ExecutionProcessID: q.Get("execution_process_id"),
		Kind:               types.ApprovalKind(q.Get("kind")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "kind must be permission or question", h.logger)
		return
	}

	pending := h.engine.Pending(filter)
	items := make([]api.PendingApprovalItem, 0, len(pending))
	for _, p := range pending {
		items = append(items, api.PendingApprovalItem{ApprovalRequest: p.Request, Kind: p.Kind})
	}
	WriteSuccess(w, r, api.PendingApprovalList{Items: items, Total: len(items)})
}

// HandleGet 处理 GET /api/v1/approvals/{id}，返回持久化记录（含已终结的请求）
func (h *ApprovalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "approval records are not available", h.logger)
		return
	}
	record, err := h.records.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, approvals.ToAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, r, record)
}
