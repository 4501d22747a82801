// internal/service/inventory/domain/inventory.go
package domain

import (
	"sort"

	"bulkorder/internal/pkg/errs"
)

// EarmarkedAsset 是一笔未完成的预留：为哪个订单、扣了多少量。
type EarmarkedAsset struct {
	OrderID  string
	Quantity int64
}

// EarmarkEntry 是对外暴露的预留视图，带上 reservation id。
type EarmarkEntry struct {
	ReservationID string `json:"reservationId"`
	OrderID       string `json:"orderId"`
	Quantity      int64  `json:"quantity"`
}

// Inventory 是单个资产的库存聚合，按资产名作为实体 key。
//
// 守恒律：Available + Sold + Σ(未结预留量) 在聚合的整个生命周期内不变。
// earmark 把量从 Available 挪进预留项；markBooked 把量从预留项挪进
// Sold（并按订单记账）；release/revert 把量挪回 Available。
//
// 所有写操作对同样的逻辑 key 重复投递都是幂等的：
//   - earmark 按 reservationID 去重
//   - markBooked 按 orderID 去重（订单记账使重复调用成为 no-op）
//   - releaseEarmark / revertOrder 在记录已清除后是 no-op
type Inventory struct {
	Name      string
	Available int64
	Sold      int64
	Earmarks  map[string]EarmarkedAsset
	Orders    map[string]int64
}

// New 创建一个新的库存聚合。资产首次被访问时可用量为 defaultQuantity。
func New(name string, defaultQuantity int64) *Inventory {
	return &Inventory{
		Name:      name,
		Available: defaultQuantity,
		Earmarks:  make(map[string]EarmarkedAsset),
		Orders:    make(map[string]int64),
	}
}

// Earmark 为订单预留数量。返回值表示是否新建了预留：
// 重复投递同一个 reservationID 返回 (false, nil)，是幂等成功。
// 可用量不足是终态错误，重试同样的请求不会成功。
func (inv *Inventory) Earmark(reservationID, orderID string, quantity int64) (bool, error) {
	if err := checkID(reservationID, "reservationId"); err != nil {
		return false, err
	}
	if err := checkID(orderID, "orderId"); err != nil {
		return false, err
	}
	if err := checkQuantity(quantity); err != nil {
		return false, err
	}

	if _, exists := inv.Earmarks[reservationID]; exists {
		return false, nil // idempotent retry
	}

	if inv.Available < quantity {
		return false, errs.NewTerminal(409, "not enough available, only %d left", inv.Available)
	}

	inv.Available -= quantity
	inv.Earmarks[reservationID] = EarmarkedAsset{OrderID: orderID, Quantity: quantity}
	return true, nil
}

// ReleaseEarmark 释放一笔预留，把量还给可用量。
// 预留不存在（已释放或已过期）时是 no-op，返回释放的数量。
func (inv *Inventory) ReleaseEarmark(reservationID string) (int64, error) {
	if err := checkID(reservationID, "reservationId"); err != nil {
		return 0, err
	}

	earmarked, exists := inv.Earmarks[reservationID]
	if !exists {
		return 0, nil // already expired, or idempotent retry
	}

	delete(inv.Earmarks, reservationID)
	inv.Available += earmarked.Quantity
	return earmarked.Quantity, nil
}

// MarkBooked 把一笔预留转为已售出，按订单 ID 记账。
// 同一订单的重复投递是 no-op。预留不存在或归属别的订单是终态错误。
func (inv *Inventory) MarkBooked(orderID, reservationID string) error {
	if err := checkID(orderID, "orderId"); err != nil {
		return err
	}
	if err := checkID(reservationID, "reservationId"); err != nil {
		return err
	}

	if _, booked := inv.Orders[orderID]; booked {
		return nil // repeated call for the same order
	}

	earmarked, exists := inv.Earmarks[reservationID]
	if !exists {
		return errs.NewTerminal(400, "asset not earmarked under id: %s", reservationID)
	}
	if earmarked.OrderID != orderID {
		return errs.NewTerminal(400, "asset under reservation %s is earmarked for order %s, not %s", reservationID, earmarked.OrderID, orderID)
	}

	inv.Sold += earmarked.Quantity
	inv.Orders[orderID] = earmarked.Quantity
	delete(inv.Earmarks, reservationID)
	return nil
}

// RevertOrder 撤销一笔已完成的售出，把量从 Sold 还给 Available。
// 订单记录不存在（从未成交，或重复撤销）时是 no-op。
func (inv *Inventory) RevertOrder(orderID string) error {
	if err := checkID(orderID, "orderId"); err != nil {
		return err
	}

	quantity, exists := inv.Orders[orderID]
	if !exists {
		return nil // was never executed, or an undo delivered twice
	}
	if inv.Sold < quantity {
		return errs.NewTerminal(400, "trying to reverse more than was booked before")
	}

	inv.Sold -= quantity
	inv.Available += quantity
	delete(inv.Orders, orderID)
	return nil
}

// OutstandingEarmarks 返回所有未结预留，按 reservation id 排序。
func (inv *Inventory) OutstandingEarmarks() []EarmarkEntry {
	entries := make([]EarmarkEntry, 0, len(inv.Earmarks))
	for id, e := range inv.Earmarks {
		entries = append(entries, EarmarkEntry{ReservationID: id, OrderID: e.OrderID, Quantity: e.Quantity})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ReservationID < entries[j].ReservationID })
	return entries
}

func checkID(id, name string) error {
	if id == "" {
		return errs.NewTerminal(400, "argument %s is empty", name)
	}
	return nil
}

func checkQuantity(quantity int64) error {
	if quantity <= 0 {
		return errs.NewTerminal(400, "quantity must be positive, got %d", quantity)
	}
	return nil
}
