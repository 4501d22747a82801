package saga

import (
	"context"
	"sync"

	"bulkorder/internal/pkg/logger"
)

// sagaContext 收集已完成步骤的补偿函数。
// 补偿按注册顺序执行：每个补偿只回滚自己那份独立资源，
// 执行顺序不影响正确性。
type sagaContext struct {
	orderID       string
	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

func (c *sagaContext) addCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append(c.compensations, comp)
}

func (c *sagaContext) triggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Str("order_id", c.orderID).
		Int("steps", len(c.compensations)).
		Msg("rolling back completed saga steps")
	for _, comp := range c.compensations {
		comp(ctx)
	}
}
