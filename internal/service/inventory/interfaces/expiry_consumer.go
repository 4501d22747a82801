// internal/service/inventory/interfaces/expiry_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/pkg/mq"
	"bulkorder/internal/service/inventory/application"
	"bulkorder/internal/service/inventory/infrastructure/adapter"
)

// ExpiryConsumer 消费预留过期事件，对到期仍未成交的预留执行释放。
// 释放对已清除的预留是 no-op，所以重复投递无害。
type ExpiryConsumer struct {
	reader *kafka.Reader
	svc    *application.Service
	tracer trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExpiryConsumer(brokers []string, svc *application.Service) *ExpiryConsumer {
	return &ExpiryConsumer{
		reader: mq.NewKafkaReader(brokers, adapter.ReleaseTopic, "inventory-service-expiry-group"),
		svc:    svc,
		tracer: otel.Tracer("inventory-expiry-consumer"),
	}
}

func (c *ExpiryConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("fetch expiry message failed")
				continue
			}
			c.handle(ctx, msg)
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit expiry message failed")
			}
		}
	}()
}

func (c *ExpiryConsumer) handle(parentCtx context.Context, msg kafka.Message) {
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parentCtx, &carrier)
	ctx, span := c.tracer.Start(ctx, "inventory.expire-earmark")
	defer span.End()

	var event adapter.EarmarkExpiryEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("malformed expiry event, skipping")
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("asset.name", event.AssetName),
		attribute.String("reservation.id", event.ReservationID),
	)

	if err := c.svc.ReleaseEarmark(ctx, event.AssetName, event.ReservationID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("asset", event.AssetName).
			Str("reservation_id", event.ReservationID).
			Msg("failed to release expired earmark")
		span.RecordError(err)
		return
	}
	logger.Ctx(ctx).Info().
		Str("asset", event.AssetName).
		Str("reservation_id", event.ReservationID).
		Msg("expired earmark processed")
}

func (c *ExpiryConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	_ = c.reader.Close()
}
