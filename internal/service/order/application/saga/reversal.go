package saga

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/service/order/domain"
	"bulkorder/internal/service/order/port"
)

// ReversalSaga 撤销一个已成交订单的所有子订单。
// 每一步都是幂等的 revertOrder，所以 saga 整体可以安全重放：
// 任何一步没能完成时订单停在 REVERSING，下一次 cancel 从头再跑。
type ReversalSaga struct {
	inventory   port.InventoryService
	tracer      trace.Tracer
	stepRetries int
	retryDelay  time.Duration
}

func NewReversalSaga(inventory port.InventoryService, tracer trace.Tracer, stepRetries int, retryDelay time.Duration) *ReversalSaga {
	return &ReversalSaga{
		inventory:   inventory,
		tracer:      tracer,
		stepRetries: stepRetries,
		retryDelay:  retryDelay,
	}
}

// Execute 依次撤销每一笔成交。所有子订单都会被尝试；
// 只要有一步失败就返回错误，调用方不得把订单判为 REVERSED。
func (s *ReversalSaga) Execute(ctx context.Context, orderID string, booked []domain.BookedItem) error {
	ctx, span := s.tracer.Start(ctx, "saga.reverse-orders")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.items", len(booked)),
	)

	var firstErr error
	for _, item := range booked {
		item := item
		err := s.withRetry(ctx, func() error {
			return s.inventory.RevertOrder(ctx, item)
		})
		if err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", orderID).
				Str("asset", item.Asset.Name).
				Msg("reversal step failed")
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "revert %s", item.Asset.Name)
			}
		}
	}

	if firstErr != nil {
		span.SetStatus(codes.Error, "reversal incomplete")
		return firstErr
	}
	span.AddEvent("all bookings reverted")
	return nil
}

func (s *ReversalSaga) withRetry(ctx context.Context, op func() error) error {
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
