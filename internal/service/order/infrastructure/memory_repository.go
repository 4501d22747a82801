package infrastructure

import (
	"context"
	"sync"

	"bulkorder/internal/service/order/domain"
)

// MemoryRepository 是订单聚合的内存实现，用于本地开发和测试。
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.BulkOrder
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*domain.BulkOrder)}
}

func (r *MemoryRepository) Load(ctx context.Context, orderID string) (*domain.BulkOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order, ok := r.orders[orderID]; ok {
		return order, nil
	}
	order := domain.NewBulkOrder(orderID)
	r.orders[orderID] = order
	return order, nil
}

func (r *MemoryRepository) Save(ctx context.Context, order *domain.BulkOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[order.ID] = order
	return nil
}
