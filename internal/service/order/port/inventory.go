package port

import (
	"context"

	"bulkorder/internal/service/order/domain"
)

// InventoryService 是库存服务的出站端口，订单侧的四个远程操作。
// 实现方负责把"可用量不足"这类业务拒绝转换成 (false, nil)，
// 把网络/服务端瞬时故障原样抛回供重试。
type InventoryService interface {
	// Earmark 为订单预留一笔子订单。返回 false 表示库存侧拒绝（非故障）。
	Earmark(ctx context.Context, orderID string, item domain.EarmarkedItem) (bool, error)

	// ReleaseEarmark 释放一笔预留，是 Earmark 的补偿操作。
	ReleaseEarmark(ctx context.Context, item domain.EarmarkedItem) error

	// MarkBooked 把一笔预留转为成交。
	MarkBooked(ctx context.Context, orderID string, item domain.EarmarkedItem) (domain.BookedItem, error)

	// RevertOrder 撤销一笔成交，是 MarkBooked 的补偿操作。
	RevertOrder(ctx context.Context, item domain.BookedItem) error
}
