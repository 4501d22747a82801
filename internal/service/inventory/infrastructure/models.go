// internal/service/inventory/infrastructure/models.go
package infrastructure

import "gorm.io/gorm"

// AssetModel 是资产库存的持久化模型。
type AssetModel struct {
	gorm.Model
	Name      string `gorm:"type:varchar(128);uniqueIndex"`
	Available int64
	Sold      int64
}

func (AssetModel) TableName() string {
	return "asset_inventory"
}

// EarmarkModel 是一笔未结预留的持久化模型。
type EarmarkModel struct {
	gorm.Model
	AssetName     string `gorm:"type:varchar(128);uniqueIndex:idx_asset_reservation"`
	ReservationID string `gorm:"type:varchar(64);uniqueIndex:idx_asset_reservation"`
	OrderID       string `gorm:"type:varchar(64);index"`
	Quantity      int64
}

func (EarmarkModel) TableName() string {
	return "asset_earmark"
}

// OrderRecordModel 记录资产上每个已成交订单占用的数量，
// 是 revertOrder 幂等性的依据。
type OrderRecordModel struct {
	gorm.Model
	AssetName string `gorm:"type:varchar(128);uniqueIndex:idx_asset_order"`
	OrderID   string `gorm:"type:varchar(64);uniqueIndex:idx_asset_order"`
	Quantity  int64
}

func (OrderRecordModel) TableName() string {
	return "asset_order_record"
}
