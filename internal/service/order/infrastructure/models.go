package infrastructure

import "gorm.io/gorm"

// BulkOrderModel 是大订单的持久化模型。
type BulkOrderModel struct {
	gorm.Model
	OrderID string `gorm:"type:varchar(64);uniqueIndex"`
	State   string `gorm:"type:varchar(16)"`
	Failure string `gorm:"type:varchar(255)"`
}

func (BulkOrderModel) TableName() string {
	return "bulk_order"
}

// 子订单条目的归属：待成交还是已成交。
const (
	itemKindPending = "pending"
	itemKindBooked  = "booked"
)

// OrderItemModel 是子订单条目的持久化模型。
// pending 条目带 reservation id，booked 条目不再需要它。
type OrderItemModel struct {
	gorm.Model
	OrderID       string `gorm:"type:varchar(64);index"`
	Kind          string `gorm:"type:varchar(8)"`
	ReservationID string `gorm:"type:varchar(64)"`
	AssetName     string `gorm:"type:varchar(128)"`
	Quantity      int64
}

func (OrderItemModel) TableName() string {
	return "bulk_order_item"
}
