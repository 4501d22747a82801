// cmd/delay-scheduler/main.go
//
// 延迟消息中继：轮询各个延迟主题，把到期的消息转投到
// real-topic 头指定的业务主题。库存服务的预留过期就靠它兜底。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/pkg/mq"
	"bulkorder/internal/pkg/tracing"
)

const serviceName = "delay-scheduler"

// 支持的延迟级别。每个级别一个主题，消息按进入主题的时间 + 级别时长到期。
var delayLevels = map[string]time.Duration{
	"delay_topic_5s":  5 * time.Second,
	"delay_topic_1m":  1 * time.Minute,
	"delay_topic_30m": 30 * time.Minute,
}

var tracer = otel.Tracer(serviceName)

// relay 负责单个延迟级别的轮询和转投。
type relay struct {
	level   string
	delay   time.Duration
	brokers []string
	reader  *kafka.Reader

	writers    map[string]*kafka.Writer // key: realTopic
	writerLock sync.Mutex
}

func newRelay(brokers []string, level string, delay time.Duration) *relay {
	return &relay{
		level:   level,
		delay:   delay,
		brokers: brokers,
		reader:  mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level),
		writers: make(map[string]*kafka.Writer),
	}
}

func (r *relay) run(ctx context.Context, interval time.Duration) {
	log.Info().Str("level", r.level).Dur("interval", interval).Msg("polling relay started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer r.reader.Close()
	defer r.closeWriters()

	for {
		select {
		case <-ticker.C:
			r.drainDue(ctx)
		case <-ctx.Done():
			log.Info().Str("level", r.level).Msg("relay shutting down")
			return
		}
	}
}

// drainDue 把队头所有到期的消息转投出去。队头未到期就等下一个 tick：
// 同一主题里的消息按进入时间排序，队头没到期后面的更不会到期。
func (r *relay) drainDue(parentCtx context.Context) {
	for {
		fetchCtx, cancel := context.WithTimeout(parentCtx, 2*time.Second)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			return // 没有消息，或正在关停
		}

		carrier := mq.KafkaHeaderCarrier(msg.Headers)
		spanCtx := otel.GetTextMapPropagator().Extract(parentCtx, &carrier)
		ctx, span := tracer.Start(spanCtx, "relay.check-and-publish", trace.WithAttributes(
			attribute.String("delay.level", r.level),
		))

		deliveryTime := dueTime(msg, r.delay)
		if time.Now().Before(deliveryTime) {
			span.AddEvent("head message not due")
			span.End()
			return
		}

		realTopic := headerValue(msg.Headers, "real-topic")
		if realTopic == "" {
			log.Error().Str("level", r.level).Msg("message without real-topic header, skipping")
			if err := r.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("failed to commit skipped message")
			}
			span.End()
			continue
		}

		if err := r.publish(ctx, realTopic, msg); err != nil {
			// 转投失败不提交，等下次轮询重试
			log.Error().Err(err).Str("real_topic", realTopic).Msg("failed to publish due message")
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish to real topic failed")
			span.End()
			return
		}
		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Str("level", r.level).Msg("failed to commit relayed message")
			span.RecordError(err)
			span.End()
			return
		}
		span.AddEvent("message relayed", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

func (r *relay) publish(ctx context.Context, realTopic string, msg kafka.Message) error {
	r.writerLock.Lock()
	writer, exists := r.writers[realTopic]
	if !exists {
		writer = mq.NewKafkaWriter(r.brokers, realTopic)
		r.writers[realTopic] = writer
	}
	r.writerLock.Unlock()

	out := kafka.Message{Key: msg.Key, Value: msg.Value}
	mq.InjectTraceContext(ctx, &out.Headers)
	return writer.WriteMessages(ctx, out)
}

func (r *relay) closeWriters() {
	r.writerLock.Lock()
	defer r.writerLock.Unlock()
	for topic, writer := range r.writers {
		if err := writer.Close(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}

// dueTime 计算消息的投递时刻：优先用 delay-timestamp 头携带的精确时刻，
// 头缺失或解析不了时退回"进入主题时间 + 级别时长"。
func dueTime(msg kafka.Message, levelDelay time.Duration) time.Time {
	if raw := headerValue(msg.Headers, "delay-timestamp"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return msg.Time.Add(levelDelay)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config file")
	flag.Parse()

	logger.Init(serviceName)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for level, delay := range delayLevels {
		wg.Add(1)
		rl := newRelay(cfg.Infra.KafkaBrokers, level, delay)
		go func() {
			defer wg.Done()
			rl.run(ctx, time.Second)
		}()
	}
	log.Info().Int("levels", len(delayLevels)).Msg("all polling relays running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()
	wg.Wait()
}
