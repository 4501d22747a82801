package saga

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/service/order/domain"
)

// fakeInventory 按资产名编排每一步的行为。
type fakeInventory struct {
	bookErrs      map[string]error // asset name -> MarkBooked 的返回错误
	bookTransient map[string]int   // asset name -> 前 N 次调用返回瞬时错误
	bookCalls     []string
	reverts       []string
	revertErrs    map[string]error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		bookErrs:      map[string]error{},
		bookTransient: map[string]int{},
		revertErrs:    map[string]error{},
	}
}

func (f *fakeInventory) Earmark(ctx context.Context, orderID string, item domain.EarmarkedItem) (bool, error) {
	return true, nil
}

func (f *fakeInventory) ReleaseEarmark(ctx context.Context, item domain.EarmarkedItem) error {
	return nil
}

func (f *fakeInventory) MarkBooked(ctx context.Context, orderID string, item domain.EarmarkedItem) (domain.BookedItem, error) {
	name := item.Asset.Name
	f.bookCalls = append(f.bookCalls, name)
	if n := f.bookTransient[name]; n > 0 {
		f.bookTransient[name] = n - 1
		return domain.BookedItem{}, errors.New("connection refused")
	}
	if err := f.bookErrs[name]; err != nil {
		return domain.BookedItem{}, err
	}
	return domain.BookedItem{OrderID: orderID, Asset: item.Asset}, nil
}

func (f *fakeInventory) RevertOrder(ctx context.Context, item domain.BookedItem) error {
	f.reverts = append(f.reverts, item.Asset.Name)
	return f.revertErrs[item.Asset.Name]
}

func items(names ...string) []domain.EarmarkedItem {
	out := make([]domain.EarmarkedItem, 0, len(names))
	for i, n := range names {
		out = append(out, domain.EarmarkedItem{
			ReservationID: "r" + string(rune('1'+i)),
			Asset:         domain.Asset{Name: n, Quantity: 10},
		})
	}
	return out
}

func newBookingSaga(inv *fakeInventory) *BookingSaga {
	return NewBookingSaga(inv, otel.Tracer("test"), 2, 0)
}

func TestBookingSagaAllStepsSucceed(t *testing.T) {
	inv := newFakeInventory()
	res := newBookingSaga(inv).Execute(context.Background(), "o1", items("widget", "gadget", "gizmo"))

	if !res.Success {
		t.Fatal("expected success")
	}
	if len(res.Booked) != 3 {
		t.Fatalf("booked = %d, want 3", len(res.Booked))
	}
	for _, b := range res.Booked {
		if b.OrderID != "o1" {
			t.Fatalf("booked item carries order id %q, want o1", b.OrderID)
		}
	}
	if len(inv.reverts) != 0 {
		t.Fatalf("no compensation expected, got reverts %v", inv.reverts)
	}
}

func TestBookingSagaCompensatesOnTerminalFailure(t *testing.T) {
	inv := newFakeInventory()
	inv.bookErrs["gizmo"] = errs.NewTerminal(400, "asset not earmarked")

	res := newBookingSaga(inv).Execute(context.Background(), "o1", items("widget", "gadget", "gizmo"))

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Booked != nil {
		t.Fatalf("failed saga must not expose booked items, got %v", res.Booked)
	}
	// 已成交的两笔按成交顺序撤销
	if len(inv.reverts) != 2 || inv.reverts[0] != "widget" || inv.reverts[1] != "gadget" {
		t.Fatalf("reverts = %v, want [widget gadget]", inv.reverts)
	}
}

func TestBookingSagaRetriesTransientErrors(t *testing.T) {
	inv := newFakeInventory()
	inv.bookTransient["widget"] = 2 // 前两次失败，第三次成功

	res := newBookingSaga(inv).Execute(context.Background(), "o1", items("widget"))

	if !res.Success {
		t.Fatal("expected success after transient retries")
	}
	if got := len(inv.bookCalls); got != 3 {
		t.Fatalf("book calls = %d, want 3", got)
	}
}

func TestBookingSagaTerminalErrorNotRetried(t *testing.T) {
	inv := newFakeInventory()
	inv.bookErrs["widget"] = errs.NewTerminal(400, "asset not earmarked")

	newBookingSaga(inv).Execute(context.Background(), "o1", items("widget"))

	if got := len(inv.bookCalls); got != 1 {
		t.Fatalf("terminal error must not be retried, got %d calls", got)
	}
}

func TestBookingSagaRetriesExhaustedTriggersCompensation(t *testing.T) {
	inv := newFakeInventory()
	inv.bookTransient["gadget"] = 100 // 永远是瞬时错误

	res := newBookingSaga(inv).Execute(context.Background(), "o1", items("widget", "gadget"))

	if res.Success {
		t.Fatal("expected failure after retries exhausted")
	}
	if len(inv.reverts) != 1 || inv.reverts[0] != "widget" {
		t.Fatalf("reverts = %v, want [widget]", inv.reverts)
	}
}

func TestReversalSagaRevertsAll(t *testing.T) {
	inv := newFakeInventory()
	booked := []domain.BookedItem{
		{OrderID: "o1", Asset: domain.Asset{Name: "widget", Quantity: 10}},
		{OrderID: "o1", Asset: domain.Asset{Name: "gadget", Quantity: 5}},
	}

	err := NewReversalSaga(inv, otel.Tracer("test"), 2, 0).Execute(context.Background(), "o1", booked)
	if err != nil {
		t.Fatalf("reversal: %v", err)
	}
	if len(inv.reverts) != 2 {
		t.Fatalf("reverts = %v, want both items", inv.reverts)
	}
}

func TestReversalSagaAttemptsRemainingStepsOnFailure(t *testing.T) {
	inv := newFakeInventory()
	inv.revertErrs["widget"] = errs.NewTerminal(400, "trying to reverse more than was booked before")
	booked := []domain.BookedItem{
		{OrderID: "o1", Asset: domain.Asset{Name: "widget", Quantity: 10}},
		{OrderID: "o1", Asset: domain.Asset{Name: "gadget", Quantity: 5}},
	}

	err := NewReversalSaga(inv, otel.Tracer("test"), 2, 0).Execute(context.Background(), "o1", booked)
	if err == nil {
		t.Fatal("expected error when a step fails")
	}
	// 失败不拦截后续子订单
	found := false
	for _, r := range inv.reverts {
		if r == "gadget" {
			found = true
		}
	}
	if !found {
		t.Fatalf("remaining items must still be attempted, reverts = %v", inv.reverts)
	}
}
