package port

import (
	"context"

	"bulkorder/internal/service/order/domain"
)

// OrderEventPublisher 把订单状态变更作为事件发出去，供下游
// （报表、对账、通知）消费。发布失败不应阻断主流程。
type OrderEventPublisher interface {
	PublishStateChanged(ctx context.Context, orderID string, state domain.State) error
}
