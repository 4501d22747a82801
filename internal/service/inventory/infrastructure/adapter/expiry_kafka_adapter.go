package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"bulkorder/internal/pkg/mq"
)

// ReleaseTopic 是预留过期事件的真实业务主题。
const ReleaseTopic = "inventory-earmark-release-topic"

// 延迟主题按级别划分，由 delay-relay 轮询。投递时选级别，
// 精确的到期时刻由 delay-timestamp 头携带。
var delayLevels = []struct {
	Topic string
	Delay time.Duration
}{
	{"delay_topic_5s", 5 * time.Second},
	{"delay_topic_1m", time.Minute},
	{"delay_topic_30m", 30 * time.Minute},
}

// delayTopicFor 选不超过目标延迟的最大级别；不足最小级别时用最小级别。
// 同一主题里的消息延迟相同，队头先到期的排序才成立。
func delayTopicFor(delay time.Duration) string {
	topic := delayLevels[0].Topic
	for _, level := range delayLevels {
		if level.Delay <= delay {
			topic = level.Topic
		}
	}
	return topic
}

// EarmarkExpiryEvent 是延迟投递的过期事件载荷。
type EarmarkExpiryEvent struct {
	AssetName     string    `json:"assetName"`
	ReservationID string    `json:"reservationId"`
	ExpireAt      time.Time `json:"expireAt"`
}

// ExpiryKafkaAdapter 实现 port.ExpiryScheduler：
// 把过期任务作为延迟消息发进匹配的延迟主题。
type ExpiryKafkaAdapter struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewExpiryKafkaAdapter(brokers []string) *ExpiryKafkaAdapter {
	return &ExpiryKafkaAdapter{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (a *ExpiryKafkaAdapter) ScheduleRelease(ctx context.Context, assetName, reservationID string, delay time.Duration) error {
	event := EarmarkExpiryEvent{
		AssetName:     assetName,
		ReservationID: reservationID,
		ExpireAt:      time.Now().Add(delay),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(assetName),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "real-topic", Value: []byte(ReleaseTopic)},
			{Key: "delay-timestamp", Value: []byte(event.ExpireAt.Format(time.RFC3339))},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.writer(delayTopicFor(delay)).WriteMessages(ctx, msg)
}

func (a *ExpiryKafkaAdapter) writer(topic string) *kafka.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.writers[topic]
	if !ok {
		w = mq.NewKafkaWriter(a.brokers, topic)
		a.writers[topic] = w
	}
	return w
}

func (a *ExpiryKafkaAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, w := range a.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
