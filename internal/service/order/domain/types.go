// internal/service/order/domain/types.go
package domain

// Asset 是一笔子订单要买的东西：资产名和数量。
type Asset struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// EarmarkedItem 是一笔已在库存侧预留、等待批量成交的子订单。
type EarmarkedItem struct {
	ReservationID string `json:"reservationId"`
	Asset         Asset  `json:"asset"`
}

// BookedItem 是一笔已成交的子订单。OrderID 是大订单的 ID，
// 库存侧按它记账，撤销时用它定位。
type BookedItem struct {
	OrderID string `json:"orderId"`
	Asset   Asset  `json:"asset"`
}
