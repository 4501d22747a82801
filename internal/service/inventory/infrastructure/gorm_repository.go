// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"bulkorder/internal/service/inventory/domain"
)

// GormRepository 把库存聚合整体快照写进 MySQL。
// 聚合不大（一个资产几十条预留），整写比增量同步简单可靠。
type GormRepository struct {
	db              *gorm.DB
	defaultQuantity int64
}

func NewGormRepository(db *gorm.DB, defaultQuantity int64) *GormRepository {
	return &GormRepository{db: db, defaultQuantity: defaultQuantity}
}

// Migrate 建表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&AssetModel{}, &EarmarkModel{}, &OrderRecordModel{})
}

func (r *GormRepository) Load(ctx context.Context, assetName string) (*domain.Inventory, error) {
	var model AssetModel
	err := r.db.WithContext(ctx).Where("name = ?", assetName).First(&model).Error
	if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.New(assetName, r.defaultQuantity), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load asset %s", assetName)
	}

	inv := &domain.Inventory{
		Name:      model.Name,
		Available: model.Available,
		Sold:      model.Sold,
		Earmarks:  make(map[string]domain.EarmarkedAsset),
		Orders:    make(map[string]int64),
	}

	var earmarks []EarmarkModel
	if err := r.db.WithContext(ctx).Where("asset_name = ?", assetName).Find(&earmarks).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "load earmarks for %s", assetName)
	}
	for _, e := range earmarks {
		inv.Earmarks[e.ReservationID] = domain.EarmarkedAsset{OrderID: e.OrderID, Quantity: e.Quantity}
	}

	var records []OrderRecordModel
	if err := r.db.WithContext(ctx).Where("asset_name = ?", assetName).Find(&records).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "load order records for %s", assetName)
	}
	for _, rec := range records {
		inv.Orders[rec.OrderID] = rec.Quantity
	}
	return inv, nil
}

func (r *GormRepository) Save(ctx context.Context, inv *domain.Inventory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AssetModel
		err := tx.Where("name = ?", inv.Name).First(&model).Error
		switch {
		case pkgerrors.Is(err, gorm.ErrRecordNotFound):
			model = AssetModel{Name: inv.Name, Available: inv.Available, Sold: inv.Sold}
			if err := tx.Create(&model).Error; err != nil {
				return pkgerrors.Wrapf(err, "create asset %s", inv.Name)
			}
		case err != nil:
			return pkgerrors.Wrapf(err, "load asset %s for update", inv.Name)
		default:
			updates := map[string]interface{}{"available": inv.Available, "sold": inv.Sold}
			if err := tx.Model(&model).Updates(updates).Error; err != nil {
				return pkgerrors.Wrapf(err, "update asset %s", inv.Name)
			}
		}

		// 快照式重写预留和订单记录
		if err := tx.Unscoped().Where("asset_name = ?", inv.Name).Delete(&EarmarkModel{}).Error; err != nil {
			return pkgerrors.Wrap(err, "clear earmarks")
		}
		for id, e := range inv.Earmarks {
			row := EarmarkModel{AssetName: inv.Name, ReservationID: id, OrderID: e.OrderID, Quantity: e.Quantity}
			if err := tx.Create(&row).Error; err != nil {
				return pkgerrors.Wrapf(err, "save earmark %s", id)
			}
		}

		if err := tx.Unscoped().Where("asset_name = ?", inv.Name).Delete(&OrderRecordModel{}).Error; err != nil {
			return pkgerrors.Wrap(err, "clear order records")
		}
		for orderID, quantity := range inv.Orders {
			row := OrderRecordModel{AssetName: inv.Name, OrderID: orderID, Quantity: quantity}
			if err := tx.Create(&row).Error; err != nil {
				return pkgerrors.Wrapf(err, "save order record %s", orderID)
			}
		}
		return nil
	})
}
