// internal/client/dispatcher.go
package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/httpclient"
	"bulkorder/internal/pkg/logger"
)

// CallOption 定制单次调用。
type CallOption func(*callConfig)

type callConfig struct {
	idempotencyKey string
}

// WithIdempotencyKey 指定自定义幂等键。调用方自带的键尚未支持：
// 目前每次 Dispatch 自动生成一个，整个重试序列共用。
func WithIdempotencyKey(key string) CallOption {
	return func(c *callConfig) { c.idempotencyKey = key }
}

// Dispatcher 是带故障转移的调用分发器。
// 一次 Dispatch 最多尝试 maxAttempts 次：传输层故障（连接失败、
// 超时、5xx）触发端点切换后重试，终态错误立即向上抛。
// 整个重试序列共用一个幂等键，服务端据此识别重复投递，
// 所以"响应丢了但操作已执行"的调用重放是安全的。
type Dispatcher struct {
	client      *httpclient.Client
	selector    EndpointSelector
	tracer      trace.Tracer
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
}

func NewDispatcher(httpClient *httpclient.Client, selector EndpointSelector, tracer trace.Tracer, cfg config.ClientConfig) *Dispatcher {
	return &Dispatcher{
		client:      httpClient,
		selector:    selector,
		tracer:      tracer,
		timeout:     cfg.Timeout.Std(),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay.Std(),
	}
}

// Post 分发一个写操作。path 相对于端点地址，比如 "/orders/o1/close"。
func (d *Dispatcher) Post(ctx context.Context, path string, body interface{}, out interface{}, opts ...CallOption) error {
	return d.dispatch(ctx, path, body, out, true, opts...)
}

// Get 分发一个读操作。
func (d *Dispatcher) Get(ctx context.Context, path string, out interface{}, opts ...CallOption) error {
	return d.dispatch(ctx, path, nil, out, false, opts...)
}

func (d *Dispatcher) dispatch(ctx context.Context, path string, body interface{}, out interface{}, post bool, opts ...CallOption) error {
	var cc callConfig
	for _, opt := range opts {
		opt(&cc)
	}
	if cc.idempotencyKey != "" {
		return errs.NewTerminal(400, "custom idempotency keys are not implemented")
	}

	ctx, span := d.tracer.Start(ctx, "client.dispatch", trace.WithAttributes(
		attribute.String("dispatch.path", path),
	))
	defer span.End()

	// 一个调用一个键，重试不换
	idemKey := uuid.New().String()
	headers := map[string]string{"Idempotency-Key": idemKey}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		endpoint := d.selector.Next()
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		var err error
		if post {
			err = d.client.PostJSON(callCtx, endpoint.Address+path, body, out, headers)
		} else {
			err = d.client.GetJSON(callCtx, endpoint.Address+path, out, headers)
		}
		cancel()

		if err == nil {
			span.SetAttributes(attribute.Int("dispatch.attempts", attempt))
			return nil
		}
		if errs.IsTerminal(err) {
			span.RecordError(err)
			return err
		}

		lastErr = err
		logger.Ctx(ctx).Warn().Err(err).
			Str("endpoint", endpoint.Name).
			Str("path", path).
			Int("attempt", attempt).
			Msg("call failed, failing over")
		d.selector.Failover()
	}

	exhausted := &errs.RetriesExhaustedError{Method: path, Attempts: d.maxAttempts, LastErr: lastErr}
	span.RecordError(exhausted)
	return exhausted
}
