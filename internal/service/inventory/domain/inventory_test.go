package domain

import (
	"testing"

	"bulkorder/internal/pkg/errs"
)

const initialQuantity = int64(1000)

func newTestInventory() *Inventory {
	return New("widget", initialQuantity)
}

// conservedTotal 是守恒律的左边：可用 + 已售 + 未结预留。
func conservedTotal(inv *Inventory) int64 {
	total := inv.Available + inv.Sold
	for _, e := range inv.Earmarks {
		total += e.Quantity
	}
	return total
}

func checkConservation(t *testing.T, inv *Inventory) {
	t.Helper()
	if got := conservedTotal(inv); got != initialQuantity {
		t.Fatalf("conservation violated: available=%d sold=%d, total %d, want %d",
			inv.Available, inv.Sold, got, initialQuantity)
	}
}

func TestEarmarkMovesQuantityFromAvailable(t *testing.T) {
	inv := newTestInventory()

	created, err := inv.Earmark("r1", "o1", 30)
	if err != nil {
		t.Fatalf("earmark: %v", err)
	}
	if !created {
		t.Fatal("expected a new earmark to be created")
	}
	if inv.Available != initialQuantity-30 {
		t.Fatalf("available = %d, want %d", inv.Available, initialQuantity-30)
	}
	checkConservation(t, inv)
}

func TestEarmarkIdempotentRetry(t *testing.T) {
	inv := newTestInventory()

	if _, err := inv.Earmark("r1", "o1", 30); err != nil {
		t.Fatalf("earmark: %v", err)
	}
	created, err := inv.Earmark("r1", "o1", 30)
	if err != nil {
		t.Fatalf("repeated earmark: %v", err)
	}
	if created {
		t.Fatal("repeated earmark must not create a second hold")
	}
	if inv.Available != initialQuantity-30 {
		t.Fatalf("available changed on retry: %d", inv.Available)
	}
	checkConservation(t, inv)
}

func TestEarmarkInsufficientStockIsTerminal(t *testing.T) {
	inv := newTestInventory()

	_, err := inv.Earmark("r1", "o1", initialQuantity+1)
	if err == nil {
		t.Fatal("expected error for insufficient stock")
	}
	if !errs.IsTerminal(err) {
		t.Fatalf("insufficient stock must be terminal, got %v", err)
	}
	if inv.Available != initialQuantity {
		t.Fatalf("failed earmark must not mutate state, available = %d", inv.Available)
	}
	checkConservation(t, inv)
}

func TestReleaseEarmarkReturnsQuantity(t *testing.T) {
	inv := newTestInventory()
	inv.Earmark("r1", "o1", 30)

	released, err := inv.ReleaseEarmark("r1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 30 {
		t.Fatalf("released = %d, want 30", released)
	}
	if inv.Available != initialQuantity {
		t.Fatalf("available = %d, want %d", inv.Available, initialQuantity)
	}
	checkConservation(t, inv)

	// 再次释放是 no-op
	released, err = inv.ReleaseEarmark("r1")
	if err != nil || released != 0 {
		t.Fatalf("second release: got (%d, %v), want (0, nil)", released, err)
	}
	checkConservation(t, inv)
}

func TestMarkBookedMovesQuantityToSold(t *testing.T) {
	inv := newTestInventory()
	inv.Earmark("r1", "o1", 30)

	if err := inv.MarkBooked("o1", "r1"); err != nil {
		t.Fatalf("markBooked: %v", err)
	}
	if inv.Sold != 30 {
		t.Fatalf("sold = %d, want 30", inv.Sold)
	}
	if len(inv.Earmarks) != 0 {
		t.Fatalf("earmark should be cleared after booking, got %d entries", len(inv.Earmarks))
	}
	if inv.Orders["o1"] != 30 {
		t.Fatalf("order record = %d, want 30", inv.Orders["o1"])
	}
	checkConservation(t, inv)
}

func TestMarkBookedIdempotentPerOrder(t *testing.T) {
	inv := newTestInventory()
	inv.Earmark("r1", "o1", 30)
	if err := inv.MarkBooked("o1", "r1"); err != nil {
		t.Fatalf("markBooked: %v", err)
	}

	if err := inv.MarkBooked("o1", "r1"); err != nil {
		t.Fatalf("repeated markBooked: %v", err)
	}
	if inv.Sold != 30 {
		t.Fatalf("sold changed on retry: %d", inv.Sold)
	}
	checkConservation(t, inv)
}

func TestMarkBookedRequiresMatchingEarmark(t *testing.T) {
	inv := newTestInventory()

	err := inv.MarkBooked("o1", "r-missing")
	if err == nil || !errs.IsTerminal(err) {
		t.Fatalf("booking without earmark must be terminal, got %v", err)
	}

	inv.Earmark("r1", "o1", 30)
	err = inv.MarkBooked("o2", "r1")
	if err == nil || !errs.IsTerminal(err) {
		t.Fatalf("booking a foreign earmark must be terminal, got %v", err)
	}
	if inv.Sold != 0 {
		t.Fatalf("failed booking must not mutate sold, got %d", inv.Sold)
	}
	checkConservation(t, inv)
}

func TestRevertOrderRestoresAvailable(t *testing.T) {
	inv := newTestInventory()
	inv.Earmark("r1", "o1", 30)
	inv.MarkBooked("o1", "r1")

	if err := inv.RevertOrder("o1"); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if inv.Available != initialQuantity || inv.Sold != 0 {
		t.Fatalf("after revert: available=%d sold=%d, want %d/0", inv.Available, inv.Sold, initialQuantity)
	}
	checkConservation(t, inv)

	// 重复撤销是 no-op
	if err := inv.RevertOrder("o1"); err != nil {
		t.Fatalf("second revert: %v", err)
	}
	checkConservation(t, inv)
}

func TestRevertOrderUnknownOrderIsNoop(t *testing.T) {
	inv := newTestInventory()
	if err := inv.RevertOrder("never-booked"); err != nil {
		t.Fatalf("revert of unknown order must be a no-op, got %v", err)
	}
	checkConservation(t, inv)
}

func TestValidationRejectsBeforeMutation(t *testing.T) {
	inv := newTestInventory()

	cases := []struct {
		name string
		call func() error
	}{
		{"empty reservation id", func() error { _, err := inv.Earmark("", "o1", 5); return err }},
		{"empty order id", func() error { _, err := inv.Earmark("r1", "", 5); return err }},
		{"zero quantity", func() error { _, err := inv.Earmark("r1", "o1", 0); return err }},
		{"negative quantity", func() error { _, err := inv.Earmark("r1", "o1", -5); return err }},
		{"release empty id", func() error { _, err := inv.ReleaseEarmark(""); return err }},
		{"book empty order id", func() error { return inv.MarkBooked("", "r1") }},
		{"revert empty id", func() error { return inv.RevertOrder("") }},
	}
	for _, tc := range cases {
		err := tc.call()
		if err == nil || !errs.IsTerminal(err) {
			t.Fatalf("%s: expected terminal validation error, got %v", tc.name, err)
		}
	}
	if inv.Available != initialQuantity || inv.Sold != 0 || len(inv.Earmarks) != 0 {
		t.Fatal("validation failures must not mutate state")
	}
	checkConservation(t, inv)
}

func TestConservationAcrossMixedSequence(t *testing.T) {
	inv := newTestInventory()

	ops := []func(){
		func() { inv.Earmark("r1", "o1", 100) },
		func() { inv.Earmark("r2", "o2", 50) },
		func() { inv.MarkBooked("o1", "r1") },
		func() { inv.Earmark("r3", "o3", 200) },
		func() { inv.ReleaseEarmark("r2") },
		func() { inv.MarkBooked("o3", "r3") },
		func() { inv.RevertOrder("o1") },
		func() { inv.ReleaseEarmark("r3") }, // 已转 booked，no-op
		func() { inv.RevertOrder("o3") },
	}
	for i, op := range ops {
		op()
		if got := conservedTotal(inv); got != initialQuantity {
			t.Fatalf("conservation violated after op %d: total %d, want %d", i, got, initialQuantity)
		}
	}

	if inv.Available != initialQuantity || inv.Sold != 0 {
		t.Fatalf("final state: available=%d sold=%d, want %d/0", inv.Available, inv.Sold, initialQuantity)
	}
}

func TestOutstandingEarmarksSorted(t *testing.T) {
	inv := newTestInventory()
	inv.Earmark("r2", "o1", 10)
	inv.Earmark("r1", "o2", 20)

	entries := inv.OutstandingEarmarks()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ReservationID != "r1" || entries[1].ReservationID != "r2" {
		t.Fatalf("entries not sorted: %+v", entries)
	}
}
