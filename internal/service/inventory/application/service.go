// internal/service/inventory/application/service.go
package application

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/keymutex"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/service/inventory/domain"
	"bulkorder/internal/service/inventory/port"
)

var (
	earmarksOutstanding = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inventory_earmarks_outstanding",
		Help: "Number of outstanding earmarks per asset.",
	}, []string{"asset"})

	bookedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_orders_booked_total",
		Help: "Orders booked per asset.",
	}, []string{"asset"})

	revertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_orders_reverted_total",
		Help: "Booked orders reverted per asset.",
	}, []string{"asset"})
)

// EarmarkRequest 是预留请求的应用层载荷，字段名与对外 JSON 一致。
type EarmarkRequest struct {
	ReservationID string `json:"reservationId"`
	OrderID       string `json:"orderId"`
	Quantity      int64  `json:"quantity"`
}

// BookRequest 是成交请求载荷。
type BookRequest struct {
	OrderID       string `json:"orderId"`
	ReservationID string `json:"reservationId"`
}

// Service 是库存服务的应用层。
// 每个资产是一个独立实体：用 keymutex 保证同一资产上的操作串行执行，
// 不同资产互不阻塞。
type Service struct {
	repo      domain.Repository
	scheduler port.ExpiryScheduler
	policy    *EarmarkPolicy
	keys      *keymutex.KeyMutex
	tracer    trace.Tracer

	defaultQuantity int64
	earmarkExpiry   time.Duration
}

func NewService(repo domain.Repository, scheduler port.ExpiryScheduler, policy *EarmarkPolicy, tracer trace.Tracer, cfg config.InventoryConfig) *Service {
	return &Service{
		repo:            repo,
		scheduler:       scheduler,
		policy:          policy,
		keys:            keymutex.New(),
		tracer:          tracer,
		defaultQuantity: cfg.DefaultQuantity,
		earmarkExpiry:   cfg.EarmarkExpiry.Std(),
	}
}

// Earmark 为订单在资产上预留数量。成功（包括重复投递）返回 true。
// 可用量不足或策略拒绝返回终态错误，调用方据此判定"预留失败"而不再重试。
func (s *Service) Earmark(ctx context.Context, assetName string, req EarmarkRequest) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.earmark")
	defer span.End()
	span.SetAttributes(
		attribute.String("asset.name", assetName),
		attribute.String("reservation.id", req.ReservationID),
		attribute.Int64("earmark.quantity", req.Quantity),
	)

	unlock := s.keys.Lock(assetName)
	defer unlock()

	inv, err := s.repo.Load(ctx, assetName)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	// 准入策略只评估首次出现的预留。重复投递必须原样回报成功：
	// 可用量被后续预留压低之后，策略不能把既成事实改判成拒绝。
	_, retry := inv.Earmarks[req.ReservationID]
	if !retry && s.policy != nil && req.Quantity > 0 {
		allowed, perr := s.policy.Allow(assetName, req.Quantity, inv.Available)
		if perr != nil {
			span.RecordError(perr)
			return false, perr
		}
		if !allowed {
			logger.Ctx(ctx).Warn().
				Str("asset", assetName).
				Int64("quantity", req.Quantity).
				Msg("earmark denied by admission policy")
			return false, errs.NewTerminal(409, "earmark of %d on %s denied by admission policy", req.Quantity, assetName)
		}
	}

	created, err := inv.Earmark(req.ReservationID, req.OrderID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if !created {
		// 幂等重试，状态没有变化，不需要落盘也不需要再调度过期。
		return true, nil
	}

	if err := s.repo.Save(ctx, inv); err != nil {
		span.RecordError(err)
		return false, err
	}

	// 过期兜底：预留在 earmarkExpiry 后若仍未成交则自动释放。
	// 调度失败只记日志，预留本身已经成立。
	if s.scheduler != nil {
		if err := s.scheduler.ScheduleRelease(ctx, assetName, req.ReservationID, s.earmarkExpiry); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("asset", assetName).
				Str("reservation_id", req.ReservationID).
				Msg("failed to schedule earmark expiry")
		}
	}

	earmarksOutstanding.WithLabelValues(assetName).Set(float64(len(inv.Earmarks)))
	logger.Ctx(ctx).Info().
		Str("asset", assetName).
		Str("reservation_id", req.ReservationID).
		Str("order_id", req.OrderID).
		Int64("quantity", req.Quantity).
		Int64("available", inv.Available).
		Msg("asset earmarked")
	return true, nil
}

// ReleaseEarmark 释放一笔预留。预留不存在时是 no-op。
func (s *Service) ReleaseEarmark(ctx context.Context, assetName, reservationID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.release-earmark")
	defer span.End()
	span.SetAttributes(
		attribute.String("asset.name", assetName),
		attribute.String("reservation.id", reservationID),
	)

	unlock := s.keys.Lock(assetName)
	defer unlock()

	inv, err := s.repo.Load(ctx, assetName)
	if err != nil {
		span.RecordError(err)
		return err
	}

	released, err := inv.ReleaseEarmark(reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if released == 0 {
		return nil
	}

	if err := s.repo.Save(ctx, inv); err != nil {
		span.RecordError(err)
		return err
	}

	earmarksOutstanding.WithLabelValues(assetName).Set(float64(len(inv.Earmarks)))
	logger.Ctx(ctx).Info().
		Str("asset", assetName).
		Str("reservation_id", reservationID).
		Int64("released", released).
		Msg("earmark released")
	return nil
}

// MarkBooked 把一笔预留转为已售出。
func (s *Service) MarkBooked(ctx context.Context, assetName string, req BookRequest) error {
	ctx, span := s.tracer.Start(ctx, "inventory.mark-booked")
	defer span.End()
	span.SetAttributes(
		attribute.String("asset.name", assetName),
		attribute.String("order.id", req.OrderID),
		attribute.String("reservation.id", req.ReservationID),
	)

	unlock := s.keys.Lock(assetName)
	defer unlock()

	inv, err := s.repo.Load(ctx, assetName)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := inv.MarkBooked(req.OrderID, req.ReservationID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.repo.Save(ctx, inv); err != nil {
		span.RecordError(err)
		return err
	}

	earmarksOutstanding.WithLabelValues(assetName).Set(float64(len(inv.Earmarks)))
	bookedTotal.WithLabelValues(assetName).Inc()
	logger.Ctx(ctx).Info().
		Str("asset", assetName).
		Str("order_id", req.OrderID).
		Int64("sold", inv.Sold).
		Msg("asset booked")
	return nil
}

// RevertOrder 撤销一笔已售出的订单。订单记录不存在时是 no-op。
func (s *Service) RevertOrder(ctx context.Context, assetName, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.revert-order")
	defer span.End()
	span.SetAttributes(
		attribute.String("asset.name", assetName),
		attribute.String("order.id", orderID),
	)

	unlock := s.keys.Lock(assetName)
	defer unlock()

	inv, err := s.repo.Load(ctx, assetName)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := inv.RevertOrder(orderID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.repo.Save(ctx, inv); err != nil {
		span.RecordError(err)
		return err
	}

	revertedTotal.WithLabelValues(assetName).Inc()
	logger.Ctx(ctx).Info().
		Str("asset", assetName).
		Str("order_id", orderID).
		Int64("available", inv.Available).
		Msg("booked order reverted")
	return nil
}

// GetAvailable 返回资产当前可用量。
func (s *Service) GetAvailable(ctx context.Context, assetName string) (int64, error) {
	unlock := s.keys.RLock(assetName)
	defer unlock()

	inv, err := s.repo.Load(ctx, assetName)
	if err != nil {
		return 0, err
	}
	return inv.Available, nil
}

// GetEarmarks 返回资产上所有未结预留。
func (s *Service) GetEarmarks(ctx context.Context, assetName string) ([]domain.EarmarkEntry, error) {
	unlock := s.keys.RLock(assetName)
	defer unlock()

	inv, err := s.repo.Load(ctx, assetName)
	if err != nil {
		return nil, err
	}
	return inv.OutstandingEarmarks(), nil
}
