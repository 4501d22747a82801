package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"bulkorder/internal/pkg/mq"
	"bulkorder/internal/service/order/domain"
)

// EventTopic 是订单状态变更事件的主题。
const EventTopic = "bulk-order-events-topic"

// OrderStateChangedEvent 是发给下游的状态变更事件。
type OrderStateChangedEvent struct {
	OrderID    string       `json:"orderId"`
	State      domain.State `json:"state"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// EventKafkaAdapter 实现 port.OrderEventPublisher：
// 按订单 ID 作为分区 key，保证同一订单的事件有序。
type EventKafkaAdapter struct {
	writer *kafka.Writer
}

func NewEventKafkaAdapter(brokers []string) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: mq.NewKafkaWriter(brokers, EventTopic)}
}

func (p *EventKafkaAdapter) PublishStateChanged(ctx context.Context, orderID string, state domain.State) error {
	event := OrderStateChangedEvent{
		OrderID:    orderID,
		State:      state,
		OccurredAt: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(orderID), payload)
}

func (p *EventKafkaAdapter) Close() error {
	return p.writer.Close()
}
