// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/pkg/redis"
	"bulkorder/internal/service/inventory/application"
)

const idempotencyCacheTTL = 24 * time.Hour

// InventoryHandler 把库存服务的操作暴露为 HTTP 门面：
//
//	POST /assets/{asset}/{method}
//
// method 是操作名（earmark / releaseEarmark / markBooked / revertOrder /
// getAvailable / getEarmarks），请求体是操作参数的 JSON。
// 带 Idempotency-Key 头的请求会把成功响应缓存在 Redis 里，
// 重复投递直接回放缓存结果。
type InventoryHandler struct {
	svc    *application.Service
	cache  *redis.Client
	tracer trace.Tracer
}

func NewInventoryHandler(svc *application.Service, cache *redis.Client) *InventoryHandler {
	return &InventoryHandler{
		svc:    svc,
		cache:  cache,
		tracer: otel.Tracer("inventory-http"),
	}
}

func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /assets/{asset}/{method}", h.handleAssetCall)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (h *InventoryHandler) handleAssetCall(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	assetName := r.PathValue("asset")
	method := r.PathValue("method")

	ctx, span := h.tracer.Start(ctx, "inventory.http."+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("asset.name", assetName),
		attribute.String("inventory.method", method),
	)

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.cache != nil {
		if cached, err := h.cache.Get(ctx, "inventory:idem:"+idemKey); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, cached)
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var result interface{}
	switch method {
	case "earmark":
		var req application.EarmarkRequest
		if err = decode(body, &req); err == nil {
			result, err = h.svc.Earmark(ctx, assetName, req)
		}
	case "releaseEarmark":
		var reservationID string
		if err = decode(body, &reservationID); err == nil {
			err = h.svc.ReleaseEarmark(ctx, assetName, reservationID)
		}
	case "markBooked":
		var req application.BookRequest
		if err = decode(body, &req); err == nil {
			err = h.svc.MarkBooked(ctx, assetName, req)
		}
	case "revertOrder":
		var orderID string
		if err = decode(body, &orderID); err == nil {
			err = h.svc.RevertOrder(ctx, assetName, orderID)
		}
	case "getAvailable":
		result, err = h.svc.GetAvailable(ctx, assetName)
	case "getEarmarks":
		result, err = h.svc.GetEarmarks(ctx, assetName)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		h.writeError(w, r, err)
		span.RecordError(err)
		return
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		http.Error(w, merr.Error(), http.StatusInternalServerError)
		return
	}
	if idemKey != "" && h.cache != nil {
		if err := h.cache.Set(ctx, "inventory:idem:"+idemKey, string(payload), idempotencyCacheTTL); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("idempotency_key", idemKey).Msg("failed to cache response")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// decode 把请求体反序列化为参数，格式错误按校验失败处理。
func decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errs.NewTerminal(400, "malformed request body: %v", err)
	}
	return nil
}

// writeError 按错误类别映射状态码：终态错误带自己的状态码（400 校验、
// 409 业务冲突），其余一律 500，调用方可以重试。
func (h *InventoryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errs.IsTerminal(err) {
		status = errs.TerminalCode(err)
	}
	logger.Ctx(r.Context()).Warn().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("inventory call failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
