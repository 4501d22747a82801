// internal/service/inventory/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"

	"bulkorder/internal/service/inventory/domain"
)

// MemoryRepository 是库存聚合的内存实现，用于本地开发和测试。
// 并发安全依赖应用层的按 key 串行化，这里只保护 map 本身。
type MemoryRepository struct {
	mu              sync.Mutex
	defaultQuantity int64
	items           map[string]*domain.Inventory
}

func NewMemoryRepository(defaultQuantity int64) *MemoryRepository {
	return &MemoryRepository{
		defaultQuantity: defaultQuantity,
		items:           make(map[string]*domain.Inventory),
	}
}

func (r *MemoryRepository) Load(ctx context.Context, assetName string) (*domain.Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inv, ok := r.items[assetName]; ok {
		return inv, nil
	}
	inv := domain.New(assetName, r.defaultQuantity)
	r.items[assetName] = inv
	return inv, nil
}

func (r *MemoryRepository) Save(ctx context.Context, inv *domain.Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[inv.Name] = inv
	return nil
}
