// internal/client/orderclient.go
package client

import (
	"context"
	"fmt"
	"net/url"

	"bulkorder/internal/service/order/domain"
)

// BulkOrderClient 是订单服务的类型化客户端，建立在故障转移
// 分发器之上：每个方法一次 Dispatch，重试和端点切换对调用方透明。
type BulkOrderClient struct {
	d *Dispatcher
}

func NewBulkOrderClient(d *Dispatcher) *BulkOrderClient {
	return &BulkOrderClient{d: d}
}

type stateResponse struct {
	OrderID string       `json:"orderId"`
	State   domain.State `json:"state"`
}

type addResponse struct {
	Added bool `json:"added"`
}

func (c *BulkOrderClient) Create(ctx context.Context, orderID string) error {
	return c.d.Post(ctx, c.path(orderID, "create"), nil, nil)
}

// AddOrder 追加一笔子订单，返回库存侧是否接受了预留。
func (c *BulkOrderClient) AddOrder(ctx context.Context, orderID string, asset domain.Asset) (bool, error) {
	var resp addResponse
	if err := c.d.Post(ctx, c.path(orderID, "add"), asset, &resp); err != nil {
		return false, err
	}
	return resp.Added, nil
}

func (c *BulkOrderClient) Close(ctx context.Context, orderID string) (domain.State, error) {
	var resp stateResponse
	if err := c.d.Post(ctx, c.path(orderID, "close"), nil, &resp); err != nil {
		return "", err
	}
	return resp.State, nil
}

func (c *BulkOrderClient) Cancel(ctx context.Context, orderID string) (domain.State, error) {
	var resp stateResponse
	if err := c.d.Post(ctx, c.path(orderID, "cancel"), nil, &resp); err != nil {
		return "", err
	}
	return resp.State, nil
}

func (c *BulkOrderClient) GetStatus(ctx context.Context, orderID string) (domain.State, error) {
	var resp stateResponse
	if err := c.d.Get(ctx, c.path(orderID, "status"), &resp); err != nil {
		return "", err
	}
	return resp.State, nil
}

func (c *BulkOrderClient) GetPendingOrders(ctx context.Context, orderID string) ([]domain.EarmarkedItem, error) {
	var items []domain.EarmarkedItem
	if err := c.d.Get(ctx, c.path(orderID, "pending"), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *BulkOrderClient) GetBookedOrders(ctx context.Context, orderID string) ([]domain.BookedItem, error) {
	var items []domain.BookedItem
	if err := c.d.Get(ctx, c.path(orderID, "booked"), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *BulkOrderClient) Reset(ctx context.Context, orderID string) error {
	return c.d.Post(ctx, c.path(orderID, "reset"), nil, nil)
}

func (c *BulkOrderClient) path(orderID, op string) string {
	return fmt.Sprintf("/orders/%s/%s", url.PathEscape(orderID), op)
}
