// internal/service/inventory/port/scheduler.go
package port

import (
	"context"
	"time"
)

// ExpiryScheduler 是延迟任务调度器的出站端口。
// 预留创建成功后，通过它调度一次延迟的 releaseEarmark 自调用，
// 给泄漏的预留兜底。
type ExpiryScheduler interface {
	ScheduleRelease(ctx context.Context, assetName, reservationID string, delay time.Duration) error
}
