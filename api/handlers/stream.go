package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/api"
	"github.com/BaSui01/approvalflow/approvals"
)

// =============================================================================
// 📡 事件流 Handler（websocket）
// =============================================================================

const (
	defaultStreamBuffer = 64
	streamWriteTimeout  = 10 * time.Second
)

// EventSource 可订阅的引擎事件源
type EventSource interface {
	Subscribe(buffer int) (<-chan approvals.Event, func())
}

// StreamHandler 将引擎事件以 JSON 推送给 websocket 客户端
type StreamHandler struct {
	source         EventSource
	buffer         int
	originPatterns []string
	logger         *zap.Logger
}

// NewStreamHandler 创建事件流处理器。originPatterns 为空时只允许同源连接。
func NewStreamHandler(source EventSource, buffer int, originPatterns []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &StreamHandler{
		source:         source,
		buffer:         buffer,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "approval_stream")),
	}
}

// Register 在 mux 上注册事件流路由
func (h *StreamHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/approvals/stream", h.HandleStream)
}

// HandleStream 处理 GET /api/v1/approvals/stream[?execution_process_id=]。
// 客户端断开、引擎停止或请求取消时结束。
// 订阅先于握手完成，客户端连上后产生的事件不会丢失。
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := h.source.Subscribe(h.buffer)
	defer unsubscribe()
	processID := r.URL.Query().Get("execution_process_id")

	// 长连接不受服务器级读写超时约束；不支持时忽略
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 只推不收；CloseRead 在客户端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("stream client connected", zap.String("remote_addr", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "approval engine stopped")
				return
			}
			if processID != "" && ev.Request.ExecutionProcessID != processID {
				continue
			}
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, ev approvals.Event) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, api.StreamMessage{
		Type:       string(ev.Type),
		ApprovalID: ev.ApprovalID,
		Kind:       ev.Kind,
		Request:    ev.Request,
		Outcome:    ev.Outcome,
		Resolver:   ev.Resolver,
		At:         ev.At,
	})
}
