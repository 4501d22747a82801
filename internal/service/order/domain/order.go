// internal/service/order/domain/order.go
package domain

import (
	"time"

	"bulkorder/internal/pkg/errs"
)

// BulkOrder 是大订单聚合的根实体，按订单 ID 作为实体 key。
//
// 状态机：
//
//	NONE ──create──> OPEN ──close──> CLOSED ──saga ok──> EXECUTED
//	                  │                 └──saga fail──> FAILED
//	  │               └──cancel──> CANCELED
//	  └──cancel──> CANCELED
//	EXECUTED ──cancel──> REVERSING ──saga──> REVERSED
//
// 终态（EXECUTED/FAILED/CANCELED/REVERSED）之后只有 reset 能回到 NONE。
// 非法流转一律是终态错误(409)：重试同样的请求不会成功。
type BulkOrder struct {
	ID      string
	State   State
	Pending []EarmarkedItem
	Booked  []BookedItem
	// Failure 是成交失败时的诊断信息，只在 FAILED 状态下非空。
	Failure   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBulkOrder 返回一个尚未创建的空聚合。
func NewBulkOrder(id string) *BulkOrder {
	return &BulkOrder{ID: id, State: StateNone}
}

// Create 开启订单。只能从 NONE 出发。
func (o *BulkOrder) Create() error {
	if err := o.requireState(StateNone); err != nil {
		return err
	}
	o.State = StateOpen
	o.Pending = nil
	o.Booked = nil
	o.Failure = ""
	o.CreatedAt = time.Now()
	o.touch()
	return nil
}

// AddPending 记录一笔已在库存侧预留成功的子订单。
func (o *BulkOrder) AddPending(item EarmarkedItem) error {
	if err := o.requireState(StateOpen); err != nil {
		return err
	}
	o.Pending = append(o.Pending, item)
	o.touch()
	return nil
}

// BeginClose 进入成交过渡态，返回待成交的子订单。
// 过渡态期间聚合仍持有 pending，saga 结束时由 CompleteClose
// 或 FailClose 收尾。已处于 CLOSED 的订单是上一次成交中断留下的，
// 直接返回遗留的 pending，调用方重跑 saga 收尾。
func (o *BulkOrder) BeginClose() ([]EarmarkedItem, error) {
	switch o.State {
	case StateOpen:
		o.State = StateClosed
		o.touch()
		return o.Pending, nil
	case StateClosed:
		return o.Pending, nil
	default:
		return nil, o.invalidTransition("close")
	}
}

// CompleteClose 记录 saga 的成交结果，订单进入 EXECUTED。
func (o *BulkOrder) CompleteClose(booked []BookedItem) error {
	if err := o.requireState(StateClosed); err != nil {
		return err
	}
	o.State = StateExecuted
	o.Booked = booked
	o.Pending = nil
	o.touch()
	return nil
}

// FailClose 记录 saga 失败（补偿已经完成），订单进入 FAILED
// 并留下诊断信息。
func (o *BulkOrder) FailClose(reason string) error {
	if err := o.requireState(StateClosed); err != nil {
		return err
	}
	o.State = StateFailed
	o.Failure = reason
	o.Pending = nil
	o.Booked = nil
	o.touch()
	return nil
}

// MarkCanceled 把订单置为 CANCELED。调用方负责先释放所有预留。
func (o *BulkOrder) MarkCanceled() error {
	if o.State != StateNone && o.State != StateOpen {
		return o.invalidTransition("cancel")
	}
	o.State = StateCanceled
	o.Pending = nil
	o.touch()
	return nil
}

// BeginReversal 进入撤销过渡态，返回要撤销的成交记录。
func (o *BulkOrder) BeginReversal() ([]BookedItem, error) {
	if err := o.requireState(StateExecuted); err != nil {
		return nil, err
	}
	o.State = StateReversing
	o.touch()
	return o.Booked, nil
}

// CompleteReversal 撤销完成，订单进入 REVERSED。
func (o *BulkOrder) CompleteReversal() error {
	if err := o.requireState(StateReversing); err != nil {
		return err
	}
	o.State = StateReversed
	o.Booked = nil
	o.touch()
	return nil
}

// Reset 把聚合清回 NONE，供重复演练使用。
// 过渡态（CLOSED/REVERSING）不允许重置：saga 还在路上。
func (o *BulkOrder) Reset() error {
	switch o.State {
	case StateNone, StateExecuted, StateFailed, StateCanceled, StateReversed:
		o.State = StateNone
		o.Pending = nil
		o.Booked = nil
		o.Failure = ""
		o.touch()
		return nil
	default:
		return o.invalidTransition("reset")
	}
}

// IsTerminal 报告订单是否处于不再接受业务操作的终态。
func (o *BulkOrder) IsTerminal() bool {
	switch o.State {
	case StateExecuted, StateFailed, StateCanceled, StateReversed:
		return true
	}
	return false
}

func (o *BulkOrder) requireState(want State) error {
	if o.State != want {
		return errs.NewTerminal(409, "order %s is in state %s, expected %s", o.ID, o.State, want)
	}
	return nil
}

func (o *BulkOrder) invalidTransition(op string) error {
	return errs.NewTerminal(409, "cannot %s order %s in state %s", op, o.ID, o.State)
}

func (o *BulkOrder) touch() {
	o.UpdatedAt = time.Now()
}
