package domain

import (
	"testing"

	"bulkorder/internal/pkg/errs"
)

func openOrder(t *testing.T) *BulkOrder {
	t.Helper()
	o := NewBulkOrder("order-1")
	if err := o.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	return o
}

func item(reservationID, name string, quantity int64) EarmarkedItem {
	return EarmarkedItem{
		ReservationID: reservationID,
		Asset:         Asset{Name: name, Quantity: quantity},
	}
}

func TestCreateOpensOrder(t *testing.T) {
	o := NewBulkOrder("order-1")
	if o.State != StateNone {
		t.Fatalf("fresh order state = %s, want NONE", o.State)
	}
	if err := o.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.State != StateOpen {
		t.Fatalf("state = %s, want OPEN", o.State)
	}
}

func TestCreateTwiceIsTerminalConflict(t *testing.T) {
	o := openOrder(t)
	err := o.Create()
	if err == nil || !errs.IsTerminal(err) {
		t.Fatalf("second create must be terminal, got %v", err)
	}
	if errs.TerminalCode(err) != 409 {
		t.Fatalf("code = %d, want 409", errs.TerminalCode(err))
	}
}

func TestAddPendingRequiresOpen(t *testing.T) {
	o := NewBulkOrder("order-1")
	if err := o.AddPending(item("r1", "widget", 5)); err == nil || !errs.IsTerminal(err) {
		t.Fatalf("addPending on NONE must be terminal, got %v", err)
	}

	o = openOrder(t)
	if err := o.AddPending(item("r1", "widget", 5)); err != nil {
		t.Fatalf("addPending: %v", err)
	}
	if len(o.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(o.Pending))
	}
}

func TestCloseLifecycleSuccess(t *testing.T) {
	o := openOrder(t)
	o.AddPending(item("r1", "widget", 5))
	o.AddPending(item("r2", "gadget", 3))

	pending, err := o.BeginClose()
	if err != nil {
		t.Fatalf("beginClose: %v", err)
	}
	if o.State != StateClosed {
		t.Fatalf("state = %s, want CLOSED during saga", o.State)
	}
	if len(pending) != 2 {
		t.Fatalf("pending returned = %d, want 2", len(pending))
	}

	booked := []BookedItem{
		{OrderID: "order-1", Asset: Asset{Name: "widget", Quantity: 5}},
		{OrderID: "order-1", Asset: Asset{Name: "gadget", Quantity: 3}},
	}
	if err := o.CompleteClose(booked); err != nil {
		t.Fatalf("completeClose: %v", err)
	}
	if o.State != StateExecuted {
		t.Fatalf("state = %s, want EXECUTED", o.State)
	}
	if len(o.Pending) != 0 || len(o.Booked) != 2 {
		t.Fatalf("pending=%d booked=%d, want 0/2", len(o.Pending), len(o.Booked))
	}
}

func TestCloseLifecycleFailure(t *testing.T) {
	o := openOrder(t)
	o.AddPending(item("r1", "widget", 5))

	if _, err := o.BeginClose(); err != nil {
		t.Fatalf("beginClose: %v", err)
	}
	if err := o.FailClose("Order process failed"); err != nil {
		t.Fatalf("failClose: %v", err)
	}
	if o.State != StateFailed {
		t.Fatalf("state = %s, want FAILED", o.State)
	}
	if o.Failure != "Order process failed" {
		t.Fatalf("failure = %q, want diagnostic set", o.Failure)
	}
	if len(o.Pending) != 0 || len(o.Booked) != 0 {
		t.Fatal("failed order must not keep pending or booked items")
	}

	if err := o.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if o.Failure != "" {
		t.Fatalf("reset must clear the failure diagnostic, got %q", o.Failure)
	}
}

func TestBeginCloseResumesFromClosed(t *testing.T) {
	o := openOrder(t)
	o.AddPending(item("r1", "widget", 5))
	if _, err := o.BeginClose(); err != nil {
		t.Fatalf("beginClose: %v", err)
	}

	// 成交中断后重入：遗留的 pending 原样交还，状态保持 CLOSED
	pending, err := o.BeginClose()
	if err != nil {
		t.Fatalf("re-entered beginClose: %v", err)
	}
	if o.State != StateClosed || len(pending) != 1 {
		t.Fatalf("state = %s pending = %d, want CLOSED/1", o.State, len(pending))
	}
}

func TestCancelFromNoneAndOpen(t *testing.T) {
	o := NewBulkOrder("order-1")
	if err := o.MarkCanceled(); err != nil {
		t.Fatalf("cancel from NONE: %v", err)
	}
	if o.State != StateCanceled {
		t.Fatalf("state = %s, want CANCELED", o.State)
	}

	o = openOrder(t)
	o.AddPending(item("r1", "widget", 5))
	if err := o.MarkCanceled(); err != nil {
		t.Fatalf("cancel from OPEN: %v", err)
	}
	if len(o.Pending) != 0 {
		t.Fatal("canceled order must drop pending items")
	}
}

func TestCancelDuringSagaIsRejected(t *testing.T) {
	o := openOrder(t)
	o.AddPending(item("r1", "widget", 5))
	o.BeginClose()

	if err := o.MarkCanceled(); err == nil || !errs.IsTerminal(err) {
		t.Fatalf("cancel during CLOSED must be terminal, got %v", err)
	}
}

func TestReversalLifecycle(t *testing.T) {
	o := openOrder(t)
	o.AddPending(item("r1", "widget", 5))
	o.BeginClose()
	o.CompleteClose([]BookedItem{{OrderID: "order-1", Asset: Asset{Name: "widget", Quantity: 5}}})

	booked, err := o.BeginReversal()
	if err != nil {
		t.Fatalf("beginReversal: %v", err)
	}
	if o.State != StateReversing || len(booked) != 1 {
		t.Fatalf("state = %s, booked = %d", o.State, len(booked))
	}

	if err := o.CompleteReversal(); err != nil {
		t.Fatalf("completeReversal: %v", err)
	}
	if o.State != StateReversed || len(o.Booked) != 0 {
		t.Fatalf("state = %s booked = %d, want REVERSED/0", o.State, len(o.Booked))
	}
}

func TestReversalRequiresExecuted(t *testing.T) {
	o := openOrder(t)
	if _, err := o.BeginReversal(); err == nil || !errs.IsTerminal(err) {
		t.Fatalf("reversal from OPEN must be terminal, got %v", err)
	}
}

func TestResetOnlyFromStableStates(t *testing.T) {
	stable := []func(t *testing.T) *BulkOrder{
		func(t *testing.T) *BulkOrder { return NewBulkOrder("o") },
		func(t *testing.T) *BulkOrder {
			o := openOrder(t)
			o.BeginClose()
			o.CompleteClose(nil)
			return o
		},
		func(t *testing.T) *BulkOrder {
			o := openOrder(t)
			o.BeginClose()
			o.FailClose("Order process failed")
			return o
		},
		func(t *testing.T) *BulkOrder {
			o := NewBulkOrder("o")
			o.MarkCanceled()
			return o
		},
	}
	for i, build := range stable {
		o := build(t)
		if err := o.Reset(); err != nil {
			t.Fatalf("case %d: reset: %v", i, err)
		}
		if o.State != StateNone {
			t.Fatalf("case %d: state = %s, want NONE", i, o.State)
		}
	}

	// 过渡态不允许重置
	o := openOrder(t)
	o.BeginClose()
	if err := o.Reset(); err == nil || !errs.IsTerminal(err) {
		t.Fatalf("reset during CLOSED must be terminal, got %v", err)
	}

	// OPEN 也不允许：还有未释放的预留
	o = openOrder(t)
	if err := o.Reset(); err == nil || !errs.IsTerminal(err) {
		t.Fatalf("reset during OPEN must be terminal, got %v", err)
	}
}
