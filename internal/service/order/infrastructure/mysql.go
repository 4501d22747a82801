package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"bulkorder/internal/service/order/domain"
)

// GormRepository 把订单聚合整体快照写进 MySQL。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate 建表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&BulkOrderModel{}, &OrderItemModel{})
}

func (r *GormRepository) Load(ctx context.Context, orderID string) (*domain.BulkOrder, error) {
	var model BulkOrderModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewBulkOrder(orderID), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load order %s", orderID)
	}

	order := &domain.BulkOrder{
		ID:        model.OrderID,
		State:     domain.State(model.State),
		Failure:   model.Failure,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}

	var items []OrderItemModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "load items for order %s", orderID)
	}
	for _, item := range items {
		asset := domain.Asset{Name: item.AssetName, Quantity: item.Quantity}
		switch item.Kind {
		case itemKindPending:
			order.Pending = append(order.Pending, domain.EarmarkedItem{ReservationID: item.ReservationID, Asset: asset})
		case itemKindBooked:
			order.Booked = append(order.Booked, domain.BookedItem{OrderID: orderID, Asset: asset})
		}
	}
	return order, nil
}

func (r *GormRepository) Save(ctx context.Context, order *domain.BulkOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model BulkOrderModel
		err := tx.Where("order_id = ?", order.ID).First(&model).Error
		switch {
		case pkgerrors.Is(err, gorm.ErrRecordNotFound):
			model = BulkOrderModel{OrderID: order.ID, State: string(order.State), Failure: order.Failure}
			if err := tx.Create(&model).Error; err != nil {
				return pkgerrors.Wrapf(err, "create order %s", order.ID)
			}
		case err != nil:
			return pkgerrors.Wrapf(err, "load order %s for update", order.ID)
		default:
			updates := map[string]interface{}{"state": string(order.State), "failure": order.Failure}
			if err := tx.Model(&model).Updates(updates).Error; err != nil {
				return pkgerrors.Wrapf(err, "update order %s", order.ID)
			}
		}

		// 快照式重写条目
		if err := tx.Unscoped().Where("order_id = ?", order.ID).Delete(&OrderItemModel{}).Error; err != nil {
			return pkgerrors.Wrap(err, "clear order items")
		}
		for _, item := range order.Pending {
			row := OrderItemModel{
				OrderID:       order.ID,
				Kind:          itemKindPending,
				ReservationID: item.ReservationID,
				AssetName:     item.Asset.Name,
				Quantity:      item.Asset.Quantity,
			}
			if err := tx.Create(&row).Error; err != nil {
				return pkgerrors.Wrapf(err, "save pending item %s", item.ReservationID)
			}
		}
		for _, item := range order.Booked {
			row := OrderItemModel{
				OrderID:   order.ID,
				Kind:      itemKindBooked,
				AssetName: item.Asset.Name,
				Quantity:  item.Asset.Quantity,
			}
			if err := tx.Create(&row).Error; err != nil {
				return pkgerrors.Wrapf(err, "save booked item %s", item.Asset.Name)
			}
		}
		return nil
	})
}
