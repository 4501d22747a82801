package interfaces

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/service/order/application"
	"bulkorder/internal/service/order/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WsHandler 把订单状态变化推送给订阅的客户端。
// 连接建立后先推一次当前状态，之后每次状态变化推一条；
// 订单进入终态后连接保持打开，客户端自行决定何时断开。
type WsHandler struct {
	service      *application.OrderApplicationService
	pollInterval time.Duration
}

func NewWsHandler(service *application.OrderApplicationService) *WsHandler {
	return &WsHandler{service: service, pollInterval: 500 * time.Millisecond}
}

func (h *WsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/orders/{id}", h.streamStatus)
}

type statusPush struct {
	OrderID string       `json:"orderId"`
	State   domain.State `json:"state"`
	At      time.Time    `json:"at"`
}

func (h *WsHandler) streamStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("status stream opened")

	// 读泵只用来发现客户端断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last domain.State
	for {
		state, err := h.service.GetStatus(ctx, orderID)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("status poll failed")
			return
		}
		if state != last {
			last = state
			push := statusPush{OrderID: orderID, State: state, At: time.Now()}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(push); err != nil {
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
