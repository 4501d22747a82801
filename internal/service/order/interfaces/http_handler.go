package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/service/order/application"
	"bulkorder/internal/service/order/domain"
)

// OrderHandler 把订单服务的操作暴露为 HTTP 接口。
type OrderHandler struct {
	service *application.OrderApplicationService
	tracer  trace.Tracer
}

func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders/{id}/create", h.create)
	mux.HandleFunc("POST /orders/{id}/add", h.addOrder)
	mux.HandleFunc("POST /orders/{id}/close", h.close)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /orders/{id}/reset", h.reset)
	mux.HandleFunc("GET /orders/{id}/status", h.status)
	mux.HandleFunc("GET /orders/{id}/pending", h.pending)
	mux.HandleFunc("GET /orders/{id}/booked", h.booked)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
}

type stateResponse struct {
	OrderID string       `json:"orderId"`
	State   domain.State `json:"state"`
	Failure string       `json:"failure,omitempty"`
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.create")
	defer span.End()
	orderID := r.PathValue("id")

	if err := h.service.Create(ctx, orderID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, stateResponse{OrderID: orderID, State: domain.StateOpen})
}

func (h *OrderHandler) addOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.add")
	defer span.End()
	orderID := r.PathValue("id")

	var asset domain.Asset
	if err := json.NewDecoder(r.Body).Decode(&asset); err != nil {
		writeError(w, r, errs.NewTerminal(400, "malformed request body: %v", err))
		return
	}

	added, err := h.service.AddOrder(ctx, orderID, asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"added": added})
}

func (h *OrderHandler) close(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.close")
	defer span.End()
	orderID := r.PathValue("id")

	state, err := h.service.Close(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, stateResponse{OrderID: orderID, State: state})
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.cancel")
	defer span.End()
	orderID := r.PathValue("id")

	state, err := h.service.Cancel(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, stateResponse{OrderID: orderID, State: state})
}

func (h *OrderHandler) reset(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.reset")
	defer span.End()
	orderID := r.PathValue("id")

	if err := h.service.Reset(ctx, orderID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, stateResponse{OrderID: orderID, State: domain.StateNone})
}

func (h *OrderHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.status")
	defer span.End()
	orderID := r.PathValue("id")

	state, err := h.service.GetStatus(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := stateResponse{OrderID: orderID, State: state}
	if state == domain.StateFailed {
		if resp.Failure, err = h.service.GetFailure(ctx, orderID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, resp)
}

func (h *OrderHandler) pending(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.pending")
	defer span.End()

	items, err := h.service.GetPendingOrders(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.EarmarkedItem{}
	}
	writeJSON(w, items)
}

func (h *OrderHandler) booked(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "order.http.booked")
	defer span.End()

	items, err := h.service.GetBookedOrders(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.BookedItem{}
	}
	writeJSON(w, items)
}

// start 提取入站 trace 上下文并开启一个服务端 span。
func (h *OrderHandler) start(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("order.id", r.PathValue("id"))))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errs.IsTerminal(err) {
		status = errs.TerminalCode(err)
	}
	logger.Ctx(r.Context()).Warn().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("order call failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
