package application

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/errs"
	"bulkorder/internal/service/inventory/infrastructure"
)

type fakeScheduler struct {
	scheduled []string
	delays    []time.Duration
}

func (f *fakeScheduler) ScheduleRelease(ctx context.Context, assetName, reservationID string, delay time.Duration) error {
	f.scheduled = append(f.scheduled, assetName+"/"+reservationID)
	f.delays = append(f.delays, delay)
	return nil
}

func newTestService(t *testing.T, defaultQuantity int64) (*Service, *fakeScheduler) {
	t.Helper()
	policy, err := NewEarmarkPolicy("quantity > 0 && quantity <= available")
	if err != nil {
		t.Fatalf("compile policy: %v", err)
	}
	sched := &fakeScheduler{}
	svc := NewService(
		infrastructure.NewMemoryRepository(defaultQuantity),
		sched,
		policy,
		otel.Tracer("test"),
		config.InventoryConfig{
			DefaultQuantity: defaultQuantity,
			EarmarkExpiry:   config.Duration(30 * time.Minute),
		},
	)
	return svc, sched
}

func TestEarmarkSchedulesExpiry(t *testing.T) {
	svc, sched := newTestService(t, 1000)
	ctx := context.Background()

	ok, err := svc.Earmark(ctx, "widget", EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 30})
	if err != nil || !ok {
		t.Fatalf("earmark: got (%v, %v)", ok, err)
	}
	if len(sched.scheduled) != 1 || sched.scheduled[0] != "widget/r1" {
		t.Fatalf("expected one scheduled expiry for widget/r1, got %v", sched.scheduled)
	}
	if sched.delays[0] != 30*time.Minute {
		t.Fatalf("expiry delay = %v, want 30m", sched.delays[0])
	}

	available, err := svc.GetAvailable(ctx, "widget")
	if err != nil {
		t.Fatalf("getAvailable: %v", err)
	}
	if available != 970 {
		t.Fatalf("available = %d, want 970", available)
	}
}

func TestEarmarkRetryDoesNotRescheduleExpiry(t *testing.T) {
	svc, sched := newTestService(t, 1000)
	ctx := context.Background()

	req := EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 30}
	if _, err := svc.Earmark(ctx, "widget", req); err != nil {
		t.Fatalf("earmark: %v", err)
	}
	ok, err := svc.Earmark(ctx, "widget", req)
	if err != nil || !ok {
		t.Fatalf("repeated earmark: got (%v, %v)", ok, err)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("retry must not schedule a second expiry, got %d", len(sched.scheduled))
	}
}

func TestEarmarkRetryBypassesAdmissionPolicy(t *testing.T) {
	svc, _ := newTestService(t, 1000)
	ctx := context.Background()

	req := EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 600}
	if _, err := svc.Earmark(ctx, "widget", req); err != nil {
		t.Fatalf("earmark r1: %v", err)
	}
	if _, err := svc.Earmark(ctx, "widget", EarmarkRequest{ReservationID: "r2", OrderID: "o2", Quantity: 300}); err != nil {
		t.Fatalf("earmark r2: %v", err)
	}

	// 可用量只剩 100，策略会拒绝新的 600；但 r1 已经成立，
	// 重复投递必须是幂等成功。
	ok, err := svc.Earmark(ctx, "widget", req)
	if err != nil || !ok {
		t.Fatalf("retried earmark: got (%v, %v), want (true, nil)", ok, err)
	}
	available, _ := svc.GetAvailable(ctx, "widget")
	if available != 100 {
		t.Fatalf("available = %d, want 100 (retry must not change state)", available)
	}
}

func TestEarmarkDeniedByPolicy(t *testing.T) {
	svc, sched := newTestService(t, 100)
	ctx := context.Background()

	_, err := svc.Earmark(ctx, "widget", EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 200})
	if err == nil || !errs.IsTerminal(err) {
		t.Fatalf("over-stock earmark must fail terminally, got %v", err)
	}
	if len(sched.scheduled) != 0 {
		t.Fatal("denied earmark must not schedule expiry")
	}

	available, _ := svc.GetAvailable(ctx, "widget")
	if available != 100 {
		t.Fatalf("available = %d, want 100", available)
	}
}

func TestBookAndRevertLifecycle(t *testing.T) {
	svc, _ := newTestService(t, 1000)
	ctx := context.Background()

	if _, err := svc.Earmark(ctx, "widget", EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 40}); err != nil {
		t.Fatalf("earmark: %v", err)
	}
	if err := svc.MarkBooked(ctx, "widget", BookRequest{OrderID: "o1", ReservationID: "r1"}); err != nil {
		t.Fatalf("markBooked: %v", err)
	}

	earmarks, err := svc.GetEarmarks(ctx, "widget")
	if err != nil {
		t.Fatalf("getEarmarks: %v", err)
	}
	if len(earmarks) != 0 {
		t.Fatalf("earmarks should be empty after booking, got %v", earmarks)
	}

	if err := svc.RevertOrder(ctx, "widget", "o1"); err != nil {
		t.Fatalf("revertOrder: %v", err)
	}
	available, _ := svc.GetAvailable(ctx, "widget")
	if available != 1000 {
		t.Fatalf("available = %d, want 1000 after revert", available)
	}
}

func TestExpiredReleaseAfterBookingIsNoop(t *testing.T) {
	svc, _ := newTestService(t, 1000)
	ctx := context.Background()

	svc.Earmark(ctx, "widget", EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 40})
	if err := svc.MarkBooked(ctx, "widget", BookRequest{OrderID: "o1", ReservationID: "r1"}); err != nil {
		t.Fatalf("markBooked: %v", err)
	}

	// 过期消息在成交之后才投递：释放必须是 no-op，不能动已售出的量。
	if err := svc.ReleaseEarmark(ctx, "widget", "r1"); err != nil {
		t.Fatalf("late release: %v", err)
	}
	available, _ := svc.GetAvailable(ctx, "widget")
	if available != 960 {
		t.Fatalf("available = %d, want 960 (booked quantity must stay sold)", available)
	}
}

func TestAssetsAreIndependentEntities(t *testing.T) {
	svc, _ := newTestService(t, 100)
	ctx := context.Background()

	if _, err := svc.Earmark(ctx, "widget", EarmarkRequest{ReservationID: "r1", OrderID: "o1", Quantity: 100}); err != nil {
		t.Fatalf("earmark widget: %v", err)
	}
	ok, err := svc.Earmark(ctx, "gadget", EarmarkRequest{ReservationID: "r2", OrderID: "o1", Quantity: 100})
	if err != nil || !ok {
		t.Fatalf("earmark gadget must not be affected by widget: (%v, %v)", ok, err)
	}
}
