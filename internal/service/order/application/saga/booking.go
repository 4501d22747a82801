package saga

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/service/order/domain"
	"bulkorder/internal/service/order/port"
)

// Result 是 booking saga 的结果。失败时补偿已经执行完毕，
// Booked 为空。
type Result struct {
	Success bool
	Booked  []domain.BookedItem
}

// BookingSaga 把一个大订单的所有预留依次转为成交。
// 任何一步终态失败（或瞬时错误重试耗尽）都会触发补偿：
// 已成交的子订单按成交顺序全部撤销，订单整体判为失败。
type BookingSaga struct {
	inventory   port.InventoryService
	tracer      trace.Tracer
	stepRetries int
	retryDelay  time.Duration
}

func NewBookingSaga(inventory port.InventoryService, tracer trace.Tracer, stepRetries int, retryDelay time.Duration) *BookingSaga {
	return &BookingSaga{
		inventory:   inventory,
		tracer:      tracer,
		stepRetries: stepRetries,
		retryDelay:  retryDelay,
	}
}

// Execute 依次成交每一笔预留。
func (s *BookingSaga) Execute(ctx context.Context, orderID string, items []domain.EarmarkedItem) Result {
	ctx, span := s.tracer.Start(ctx, "saga.book-orders")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.items", len(items)),
	)

	sctx := &sagaContext{orderID: orderID}
	booked := make([]domain.BookedItem, 0, len(items))

	for _, item := range items {
		item := item
		var result domain.BookedItem
		err := s.withRetry(ctx, func() error {
			var stepErr error
			result, stepErr = s.inventory.MarkBooked(ctx, orderID, item)
			return stepErr
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "booking step failed")
			logger.Ctx(ctx).Warn().Err(err).
				Str("order_id", orderID).
				Str("asset", item.Asset.Name).
				Str("reservation_id", item.ReservationID).
				Msg("booking step failed, compensating")
			sctx.triggerCompensation(ctx)
			return Result{Success: false}
		}

		booked = append(booked, result)
		sctx.addCompensation(func(compCtx context.Context) {
			compCtx, compSpan := s.tracer.Start(compCtx, "saga.compensation.revert-order")
			defer compSpan.End()
			compSpan.SetAttributes(attribute.String("asset.name", result.Asset.Name))

			// 补偿失败只能记录，撤销本身是幂等的，重放 saga 可以收尾。
			if err := s.withRetry(compCtx, func() error {
				return s.inventory.RevertOrder(compCtx, result)
			}); err != nil {
				compSpan.RecordError(err)
				logger.Ctx(compCtx).Error().Err(err).
					Str("order_id", orderID).
					Str("asset", result.Asset.Name).
					Msg("compensation failed, booked quantity leaked")
			}
		})
	}

	span.AddEvent("all items booked")
	return Result{Success: true, Booked: booked}
}

// withRetry 执行一步远程调用：瞬时错误按固定间隔重试，
// 终态错误立即返回。
func (s *BookingSaga) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.stepRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = op()
		if err == nil || errs.IsTerminal(err) {
			return err
		}
	}
	return err
}
