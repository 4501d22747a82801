// internal/pkg/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"bulkorder/internal/pkg/errs"
)

// Client 是一个可追踪的、可注入的 HTTP 客户端。所有出站调用都带上
// 当前的 trace 上下文，并把下游的非 2xx 响应映射到统一的错误分类：
//   - 4xx: TerminalError（带原始状态码），重试没有意义
//   - 5xx / 连接失败 / 超时: 普通错误，由上层重试逻辑吸收
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
}

// NewClient 创建一个新的客户端实例。
// 不设置 http.Client 的 Timeout 字段，超时完全受每次请求传入的 context 控制。
func NewClient(tracer trace.Tracer) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
	}
}

// PostJSON 向 serviceURL 发送一个 JSON 请求体，并把 JSON 响应解码到 out。
// body 为 nil 时发送空请求体；out 为 nil 或响应体为空时跳过解码。
// headers 里的自定义请求头（比如幂等键）会原样附加。
func (c *Client) PostJSON(ctx context.Context, serviceURL string, body interface{}, out interface{}, headers map[string]string) error {
	return c.doJSON(ctx, http.MethodPost, serviceURL, body, out, headers)
}

// GetJSON 发起一个 GET 请求并把 JSON 响应解码到 out。
func (c *Client) GetJSON(ctx context.Context, serviceURL string, out interface{}, headers map[string]string) error {
	return c.doJSON(ctx, http.MethodGet, serviceURL, nil, out, headers)
}

func (c *Client) doJSON(ctx context.Context, method, serviceURL string, body interface{}, out interface{}, headers map[string]string) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return errs.NewTerminal(http.StatusBadRequest, "invalid service url %s: %v", serviceURL, err)
	}
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errs.NewTerminal(http.StatusBadRequest, "encode request body: %v", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, serviceURL, reqBody)
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	span.SetAttributes(
		attribute.String("http.url", serviceURL),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		err := errs.NewTerminal(resp.StatusCode, "request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("service %s returned status %s", serviceURL, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			span.RecordError(err)
			return errs.NewTerminal(http.StatusBadRequest, "decode response from %s: %v", serviceURL, err)
		}
	}
	return nil
}
