package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/approvalflow/api"
	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/types"
)

func startStreamServer(t *testing.T, source EventSource) string {
	t.Helper()
	mux := http.NewServeMux()
	NewStreamHandler(source, 8, nil, zaptest.NewLogger(t)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/approvals/stream"
}

func TestStreamHandler_DeliversLifecycleEvents(t *testing.T) {
	engine := approvals.New(approvals.NewMemoryStore(), zaptest.NewLogger(t))
	t.Cleanup(engine.Stop)
	url := startStreamServer(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	req, _, err := engine.CreateWithWaiter(ctx,
		engine.NewRequest(types.CreateApprovalRequest{ToolName: "shell_exec"}, "ep-1"),
		types.ApprovalKindPermission)
	require.NoError(t, err)

	var created api.StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &created))
	assert.Equal(t, string(approvals.EventCreated), created.Type)
	assert.Equal(t, req.ID, created.ApprovalID)
	assert.Equal(t, "shell_exec", created.Request.ToolName)

	_, _, err = engine.Respond(ctx, created.ApprovalID, types.ApprovalResponse{
		ExecutionProcessID: "ep-1",
		Status:             types.Denied("unsafe"),
	})
	require.NoError(t, err)

	var resolved api.StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &resolved))
	assert.Equal(t, string(approvals.EventResolved), resolved.Type)
	assert.Equal(t, created.ApprovalID, resolved.ApprovalID)
	assert.Equal(t, types.ResolverResponse, resolved.Resolver)
	require.NotNil(t, resolved.Outcome)
	assert.Equal(t, types.Denied("unsafe"), *resolved.Outcome)
}

type chanSource struct {
	ch chan approvals.Event
}

func (s *chanSource) Subscribe(int) (<-chan approvals.Event, func()) {
	return s.ch, func() {}
}

func TestStreamHandler_ClosesWhenSourceStops(t *testing.T) {
	src := &chanSource{ch: make(chan approvals.Event)}
	url := startStreamServer(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	close(src.ch)

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestStreamHandler_FiltersByExecutionProcess(t *testing.T) {
	src := &chanSource{ch: make(chan approvals.Event, 2)}
	url := startStreamServer(t, src) + "?execution_process_id=ep-2"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	src.ch <- approvals.Event{Type: approvals.EventCreated, ApprovalID: "a-1",
		Request: types.ApprovalRequest{ID: "a-1", ExecutionProcessID: "ep-1"}}
	src.ch <- approvals.Event{Type: approvals.EventCreated, ApprovalID: "a-2",
		Request: types.ApprovalRequest{ID: "a-2", ExecutionProcessID: "ep-2"}}

	var msg api.StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "a-2", msg.ApprovalID)
}
