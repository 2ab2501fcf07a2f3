package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/analytics"
	"github.com/BaSui01/approvalflow/api"
	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type fakeEngine struct {
	respondFn func(ctx context.Context, id string, resp types.ApprovalResponse) (types.ApprovalOutcome, approvals.ResponseContext, error)
	pendingFn func(filter approvals.ListFilter) []approvals.PendingApproval
}

func (f *fakeEngine) Respond(ctx context.Context, id string, resp types.ApprovalResponse) (types.ApprovalOutcome, approvals.ResponseContext, error) {
	return f.respondFn(ctx, id, resp)
}

func (f *fakeEngine) Pending(filter approvals.ListFilter) []approvals.PendingApproval {
	if f.pendingFn == nil {
		return nil
	}
	return f.pendingFn(filter)
}

type trackedEvent struct {
	name  string
	props analytics.Props
}

func recordingTracker(events *[]trackedEvent, err error) analytics.Tracker {
	return analytics.TrackerFunc(func(_ context.Context, event string, props analytics.Props) error {
		*events = append(*events, trackedEvent{name: event, props: props})
		return err
	})
}

func newTestMux(h *ApprovalHandler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) (Response, json.RawMessage) {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	return raw.Response, raw.Data
}

// =============================================================================
// 🧪 Respond
// =============================================================================

func TestApprovalHandler_Respond_Success(t *testing.T) {
	var gotID string
	var gotResp types.ApprovalResponse
	engine := &fakeEngine{
		respondFn: func(_ context.Context, id string, resp types.ApprovalResponse) (types.ApprovalOutcome, approvals.ResponseContext, error) {
			gotID, gotResp = id, resp
			return resp.Status, approvals.ResponseContext{
				ToolName:           "shell_exec",
				ExecutionProcessID: "ep-1",
				Kind:               types.ApprovalKindPermission,
			}, nil
		},
	}
	var events []trackedEvent
	h := NewApprovalHandler(engine, nil, recordingTracker(&events, nil), zap.NewNop())

	body := `{"execution_process_id":"ep-1","status":{"status":"denied","reason":"unsafe"}}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/ap-1/respond", strings.NewReader(body))
	newTestMux(h).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ap-1", gotID)
	assert.Equal(t, types.Denied("unsafe"), gotResp.Status)

	resp, data := decodeResponse(t, w)
	assert.True(t, resp.Success)
	var outcome types.ApprovalOutcome
	require.NoError(t, json.Unmarshal(data, &outcome))
	assert.Equal(t, types.Denied("unsafe"), outcome)

	require.Len(t, events, 1)
	assert.Equal(t, analytics.EventApprovalResponded, events[0].name)
	assert.Equal(t, analytics.Props{
		"approval_id":          "ap-1",
		"status":               "denied",
		"tool_name":            "shell_exec",
		"execution_process_id": "ep-1",
	}, events[0].props)
}

func TestApprovalHandler_Respond_TrackerFailureIgnored(t *testing.T) {
	engine := &fakeEngine{
		respondFn: func(_ context.Context, _ string, resp types.ApprovalResponse) (types.ApprovalOutcome, approvals.ResponseContext, error) {
			return resp.Status, approvals.ResponseContext{}, nil
		},
	}
	var events []trackedEvent
	h := NewApprovalHandler(engine, nil, recordingTracker(&events, errors.New("collector down")), nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/ap-1/respond",
		strings.NewReader(`{"execution_process_id":"ep-1","status":{"status":"approved"}}`))
	newTestMux(h).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, events, 1)
}

func TestApprovalHandler_Respond_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "not found",
			body:       `{"execution_process_id":"ep","status":{"status":"approved"}}`,
			err:        approvals.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   types.ErrApprovalNotFound,
		},
		{
			name:       "kind mismatch",
			body:       `{"execution_process_id":"ep","status":{"status":"approved"}}`,
			err:        approvals.ErrKindMismatch,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   types.ErrApprovalKindMismatch,
		},
		{
			name:       "unexpected failure",
			body:       `{"execution_process_id":"ep","status":{"status":"approved"}}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrInternalError,
		},
		{
			name:       "malformed json",
			body:       `{"status":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "unknown outcome tag",
			body:       `{"execution_process_id":"ep","status":{"status":"maybe"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			engine := &fakeEngine{
				respondFn: func(context.Context, string, types.ApprovalResponse) (types.ApprovalOutcome, approvals.ResponseContext, error) {
					called = true
					return types.ApprovalOutcome{}, approvals.ResponseContext{}, tt.err
				},
			}
			var events []trackedEvent
			h := NewApprovalHandler(engine, nil, recordingTracker(&events, nil), nil)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/ap-1/respond", strings.NewReader(tt.body))
			newTestMux(h).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp, _ := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.Empty(t, events, "no analytics event on failure")
			if tt.err == nil {
				assert.False(t, called, "engine must not be called for bad input")
			}
		})
	}
}

// =============================================================================
// 🧪 List / Get
// =============================================================================

func TestApprovalHandler_List(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	req := types.NewApprovalRequest(types.CreateApprovalRequest{ToolName: "ask_user"}, "ep-9", now, time.Hour)

	var gotFilter approvals.ListFilter
	engine := &fakeEngine{
		pendingFn: func(filter approvals.ListFilter) []approvals.PendingApproval {
			gotFilter = filter
			return []approvals.PendingApproval{{Request: req, Kind: types.ApprovalKindQuestion}}
		},
	}
	h := NewApprovalHandler(engine, nil, nil, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/approvals?execution_process_id=ep-9&kind=question", nil)
	newTestMux(h).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, approvals.ListFilter{ExecutionProcessID: "ep-9", Kind: types.ApprovalKindQuestion}, gotFilter)

	_, data := decodeResponse(t, w)
	var list api.PendingApprovalList
	require.NoError(t, json.Unmarshal(data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, req.ID, list.Items[0].ID)
	assert.Equal(t, "ask_user", list.Items[0].ToolName)
	assert.Equal(t, types.ApprovalKindQuestion, list.Items[0].Kind)
}

func TestApprovalHandler_List_InvalidKind(t *testing.T) {
	h := NewApprovalHandler(&fakeEngine{}, nil, nil, nil)

	w := httptest.NewRecorder()
	newTestMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/approvals?kind=vote", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandler_List_EmptyIsArray(t *testing.T) {
	h := NewApprovalHandler(&fakeEngine{}, nil, nil, nil)

	w := httptest.NewRecorder()
	newTestMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestApprovalHandler_Get(t *testing.T) {
	store := approvals.NewMemoryStore()
	now := time.Now().UTC()
	req := types.NewApprovalRequest(types.CreateApprovalRequest{ToolName: "shell_exec"}, "ep-1", now, time.Hour)
	require.NoError(t, store.Save(context.Background(), req, types.ApprovalKindPermission))
	require.NoError(t, store.UpdateStatus(context.Background(), req.ID, types.Denied("unsafe"), types.ResolverResponse))

	h := NewApprovalHandler(&fakeEngine{}, store, nil, nil)
	mux := newTestMux(h)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/approvals/"+req.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	_, data := decodeResponse(t, w)
	var record approvals.ApprovalRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, approvals.RecordDenied, record.Status)
	require.NotNil(t, record.Reason)
	assert.Equal(t, "unsafe", *record.Reason)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/approvals/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApprovalHandler_Get_NoRecords(t *testing.T) {
	h := NewApprovalHandler(&fakeEngine{}, nil, nil, nil)

	w := httptest.NewRecorder()
	newTestMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/approvals/x", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
