// internal/service/order/domain/repository.go
package domain

import "context"

// Repository 定义了大订单聚合的持久化接口。
// 它位于领域层，由基础设施层实现。
type Repository interface {
	// Load 按 ID 加载聚合；订单从未创建时返回一个 NONE 状态的新聚合。
	Load(ctx context.Context, orderID string) (*BulkOrder, error)

	// Save 保存聚合的完整快照。
	Save(ctx context.Context, order *BulkOrder) error
}
