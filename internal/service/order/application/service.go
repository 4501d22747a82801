// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/keymutex"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/service/order/application/saga"
	"bulkorder/internal/service/order/domain"
	"bulkorder/internal/service/order/port"
)

var stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "order_state_transitions_total",
	Help: "Bulk order state transitions by resulting state.",
}, []string{"state"})

// OrderApplicationService 编排大订单的业务流程。
// 每个订单是一个独立实体：同一订单上的操作通过 keymutex 串行执行，
// 过渡态（CLOSED/REVERSING）只在 saga 执行期间对并发读可见。
type OrderApplicationService struct {
	repo      domain.Repository
	inventory port.InventoryService
	events    port.OrderEventPublisher
	keys      *keymutex.KeyMutex
	tracer    trace.Tracer

	booking  *saga.BookingSaga
	reversal *saga.ReversalSaga

	// 可选的跨进程锁，多副本部署时防止同一订单的 saga 并发执行
	entityLock port.EntityLocker

	stepRetries int
	retryDelay  time.Duration
}

func NewOrderApplicationService(repo domain.Repository, inventory port.InventoryService, events port.OrderEventPublisher, tracer trace.Tracer, cfg config.OrderConfig) *OrderApplicationService {
	retryDelay := cfg.SagaRetryDelay.Std()
	return &OrderApplicationService{
		repo:        repo,
		inventory:   inventory,
		events:      events,
		keys:        keymutex.New(),
		tracer:      tracer,
		booking:     saga.NewBookingSaga(inventory, tracer, cfg.SagaStepRetries, retryDelay),
		reversal:    saga.NewReversalSaga(inventory, tracer, cfg.SagaStepRetries, retryDelay),
		stepRetries: cfg.SagaStepRetries,
		retryDelay:  retryDelay,
	}
}

// WithEntityLocker 叠加一层分布式锁，覆盖会执行 saga 的操作。
func (s *OrderApplicationService) WithEntityLocker(locker port.EntityLocker) *OrderApplicationService {
	s.entityLock = locker
	return s
}

// lockEntity 在需要时拿跨进程锁，返回释放函数。
func (s *OrderApplicationService) lockEntity(ctx context.Context, orderID string) (func(), error) {
	if s.entityLock == nil {
		return func() {}, nil
	}
	return s.entityLock.Lock(ctx, orderID)
}

// Create 开启一个新的大订单。重复创建同一个 ID 是终态冲突。
func (s *OrderApplicationService) Create(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	unlock := s.keys.Lock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := order.Create(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		return err
	}

	s.publish(ctx, orderID, order.State)
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("bulk order opened")
	return nil
}

// AddOrder 向一个打开的大订单里追加一笔子订单：
// 先在库存侧预留，预留成功才记录在案。
// 返回 false 表示库存侧拒绝（比如可用量不足），订单本身不受影响。
func (s *OrderApplicationService) AddOrder(ctx context.Context, orderID string, asset domain.Asset) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "order.add-order")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("asset.name", asset.Name),
		attribute.Int64("asset.quantity", asset.Quantity),
	)

	unlock := s.keys.Lock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if order.State != domain.StateOpen {
		err := errs.NewTerminal(409, "order %s is in state %s, expected %s", orderID, order.State, domain.StateOpen)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	item := domain.EarmarkedItem{
		ReservationID: uuid.New().String(),
		Asset:         asset,
	}
	span.SetAttributes(attribute.String("reservation.id", item.ReservationID))

	ok, err := s.inventory.Earmark(ctx, orderID, item)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !ok {
		logger.Ctx(ctx).Info().
			Str("order_id", orderID).
			Str("asset", asset.Name).
			Int64("quantity", asset.Quantity).
			Msg("earmark rejected by inventory")
		return false, nil
	}

	if err := order.AddPending(item); err != nil {
		span.RecordError(err)
		return false, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		return false, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("asset", asset.Name).
		Str("reservation_id", item.ReservationID).
		Int64("quantity", asset.Quantity).
		Msg("sub-order added")
	return true, nil
}

// Close 结束收单并把所有预留批量成交。
// 结果状态要么是 EXECUTED（全部成交），要么是 FAILED（已补偿）。
// 对停在 CLOSED 的订单（上一次成交中途挂掉）重新调用 Close 会
// 基于落盘的 pending 重跑 saga：成交步骤是幂等的，重放安全。
func (s *OrderApplicationService) Close(ctx context.Context, orderID string) (domain.State, error) {
	ctx, span := s.tracer.Start(ctx, "order.close")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	unlock := s.keys.Lock(orderID)
	defer unlock()
	release, err := s.lockEntity(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer release()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	pending, err := order.BeginClose()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	// 过渡态先落盘：进程挂掉时留下的是 CLOSED，而不是看似还在收单的 OPEN。
	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		return "", err
	}

	if len(pending) == 0 {
		if err := order.CompleteClose(nil); err != nil {
			return "", err
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return "", err
		}
		s.publish(ctx, orderID, order.State)
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("empty order closed")
		return order.State, nil
	}

	result := s.booking.Execute(ctx, orderID, pending)
	if result.Success {
		if err := order.CompleteClose(result.Booked); err != nil {
			return "", err
		}
	} else {
		span.SetStatus(codes.Error, "order process failed")
		if err := order.FailClose("Order process failed"); err != nil {
			return "", err
		}
	}
	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		return "", err
	}

	s.publish(ctx, orderID, order.State)
	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("state", string(order.State)).
		Int("items", len(pending)).
		Msg("bulk order closed")
	return order.State, nil
}

// Cancel 取消订单，行为取决于当前状态：
//
//	NONE              -> CANCELED（标记取消，但回报取消前的 NONE）
//	OPEN              -> 释放所有预留后 CANCELED
//	EXECUTED          -> 撤销所有成交后 REVERSED
//	REVERSING         -> 续跑未完成的撤销
//	终态              -> 原样返回，纯读
//	CLOSED            -> 终态冲突，saga 还在路上
func (s *OrderApplicationService) Cancel(ctx context.Context, orderID string) (domain.State, error) {
	ctx, span := s.tracer.Start(ctx, "order.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	unlock := s.keys.Lock(orderID)
	defer unlock()
	release, err := s.lockEntity(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer release()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("order.state", string(order.State)))

	switch order.State {
	case domain.StateNone:
		if err := order.MarkCanceled(); err != nil {
			return "", err
		}
		if err := s.repo.Save(ctx, order); err != nil {
			span.RecordError(err)
			return "", err
		}
		s.publish(ctx, orderID, order.State)
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("unopened order canceled")
		return domain.StateNone, nil

	case domain.StateCanceled, domain.StateFailed, domain.StateReversed:
		// 已经是终态，取消是纯读
		return order.State, nil

	case domain.StateOpen:
		if err := s.releaseAll(ctx, order.Pending); err != nil {
			span.RecordError(err)
			return "", err
		}
		if err := order.MarkCanceled(); err != nil {
			return "", err
		}

	case domain.StateExecuted:
		booked, err := order.BeginReversal()
		if err != nil {
			return "", err
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return "", err
		}
		if err := s.reversal.Execute(ctx, orderID, booked); err != nil {
			// 订单停在 REVERSING，重试 cancel 会续跑
			span.RecordError(err)
			return "", err
		}
		if err := order.CompleteReversal(); err != nil {
			return "", err
		}

	case domain.StateReversing:
		if err := s.reversal.Execute(ctx, orderID, order.Booked); err != nil {
			span.RecordError(err)
			return "", err
		}
		if err := order.CompleteReversal(); err != nil {
			return "", err
		}

	default:
		// CLOSED: booking saga 还在路上
		err := errs.NewTerminal(409, "cannot cancel order %s in state %s", orderID, order.State)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		return "", err
	}
	s.publish(ctx, orderID, order.State)
	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("state", string(order.State)).
		Msg("bulk order canceled")
	return order.State, nil
}

// GetStatus 返回订单当前状态。
func (s *OrderApplicationService) GetStatus(ctx context.Context, orderID string) (domain.State, error) {
	unlock := s.keys.RLock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.State, nil
}

// GetFailure 返回订单成交失败时的诊断信息，未失败时为空串。
func (s *OrderApplicationService) GetFailure(ctx context.Context, orderID string) (string, error) {
	unlock := s.keys.RLock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.Failure, nil
}

// GetPendingOrders 返回待成交的子订单。
func (s *OrderApplicationService) GetPendingOrders(ctx context.Context, orderID string) ([]domain.EarmarkedItem, error) {
	unlock := s.keys.RLock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.Pending, nil
}

// GetBookedOrders 返回已成交的子订单。
func (s *OrderApplicationService) GetBookedOrders(ctx context.Context, orderID string) ([]domain.BookedItem, error) {
	unlock := s.keys.RLock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.Booked, nil
}

// Reset 把订单清回初始状态，供重复演练使用。
func (s *OrderApplicationService) Reset(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.reset")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	unlock := s.keys.Lock(orderID)
	defer unlock()

	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.Reset(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("bulk order reset")
	return nil
}

// releaseAll 释放一组预留。释放是幂等的，失败时订单留在 OPEN，
// 重试 cancel 会把剩下的补完。
func (s *OrderApplicationService) releaseAll(ctx context.Context, pending []domain.EarmarkedItem) error {
	for _, item := range pending {
		item := item
		err := s.withRetry(ctx, func() error {
			return s.inventory.ReleaseEarmark(ctx, item)
		})
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", item.ReservationID).
				Str("asset", item.Asset.Name).
				Msg("failed to release earmark during cancel")
			return err
		}
	}
	return nil
}

func (s *OrderApplicationService) withRetry(ctx context.Context, op func() error) error {
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

func (s *OrderApplicationService) publish(ctx context.Context, orderID string, state domain.State) {
	stateTransitions.WithLabelValues(string(state)).Inc()
	if s.events == nil {
		return
	}
	if err := s.events.PublishStateChanged(ctx, orderID, state); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("order_id", orderID).
			Str("state", string(state)).
			Msg("failed to publish state change event")
	}
}
