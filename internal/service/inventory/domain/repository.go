// internal/service/inventory/domain/repository.go
package domain

import "context"

// Repository 定义了库存聚合的持久化接口。
// 它位于领域层，由基础设施层实现。
type Repository interface {
	// Load 按资产名加载聚合；资产从未被访问过时返回一个
	// 以默认可用量初始化的新聚合。
	Load(ctx context.Context, assetName string) (*Inventory, error)

	// Save 保存聚合的完整快照。
	Save(ctx context.Context, inv *Inventory) error
}
