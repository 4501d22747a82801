package adapter

import (
	"context"
	"fmt"
	"net/url"

	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/pkg/httpclient"
	"bulkorder/internal/service/order/domain"
)

// InventoryHTTPAdapter 实现 port.InventoryService：
// 通过库存服务的 HTTP 门面（POST /assets/{asset}/{method}）发起调用。
// 每个写操作都带 Idempotency-Key，库存侧据此回放重复请求的响应。
type InventoryHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewInventoryHTTPAdapter(client *httpclient.Client, baseURL string) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client, baseURL: baseURL}
}

type earmarkPayload struct {
	ReservationID string `json:"reservationId"`
	OrderID       string `json:"orderId"`
	Quantity      int64  `json:"quantity"`
}

type bookPayload struct {
	OrderID       string `json:"orderId"`
	ReservationID string `json:"reservationId"`
}

// Earmark 预留一笔子订单。库存侧的业务拒绝（409，可用量不足或
// 策略不通过）转换成 (false, nil)：这是正常的业务结果，不是故障。
func (a *InventoryHTTPAdapter) Earmark(ctx context.Context, orderID string, item domain.EarmarkedItem) (bool, error) {
	var held bool
	err := a.client.PostJSON(ctx,
		a.assetURL(item.Asset.Name, "earmark"),
		earmarkPayload{ReservationID: item.ReservationID, OrderID: orderID, Quantity: item.Asset.Quantity},
		&held,
		map[string]string{"Idempotency-Key": "earmark:" + item.ReservationID},
	)
	if err != nil {
		if errs.IsTerminal(err) && errs.TerminalCode(err) == 409 {
			return false, nil
		}
		return false, err
	}
	return held, nil
}

// ReleaseEarmark 释放一笔预留，是 Earmark 的补偿操作。
func (a *InventoryHTTPAdapter) ReleaseEarmark(ctx context.Context, item domain.EarmarkedItem) error {
	return a.client.PostJSON(ctx,
		a.assetURL(item.Asset.Name, "releaseEarmark"),
		item.ReservationID,
		nil,
		map[string]string{"Idempotency-Key": "release:" + item.ReservationID},
	)
}

// MarkBooked 把一笔预留转为成交。
func (a *InventoryHTTPAdapter) MarkBooked(ctx context.Context, orderID string, item domain.EarmarkedItem) (domain.BookedItem, error) {
	err := a.client.PostJSON(ctx,
		a.assetURL(item.Asset.Name, "markBooked"),
		bookPayload{OrderID: orderID, ReservationID: item.ReservationID},
		nil,
		map[string]string{"Idempotency-Key": "book:" + item.ReservationID},
	)
	if err != nil {
		return domain.BookedItem{}, err
	}
	return domain.BookedItem{OrderID: orderID, Asset: item.Asset}, nil
}

// RevertOrder 撤销一笔成交，是 MarkBooked 的补偿操作。
func (a *InventoryHTTPAdapter) RevertOrder(ctx context.Context, item domain.BookedItem) error {
	return a.client.PostJSON(ctx,
		a.assetURL(item.Asset.Name, "revertOrder"),
		item.OrderID,
		nil,
		map[string]string{"Idempotency-Key": fmt.Sprintf("revert:%s:%s", item.OrderID, item.Asset.Name)},
	)
}

func (a *InventoryHTTPAdapter) assetURL(assetName, method string) string {
	return fmt.Sprintf("%s/assets/%s/%s", a.baseURL, url.PathEscape(assetName), method)
}
