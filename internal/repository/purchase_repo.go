package repository

import (
	"context"

	"gorm.io/gorm"

	"echelon/backend/internal/model"
)

// PurchaseRepository 结账记录数据访问接口
type PurchaseRepository interface {
	// Create 订单号重复时返回 gorm.ErrDuplicatedKey
	Create(ctx context.Context, purchase *model.Purchase) error
	GetByOrderID(ctx context.Context, orderID string) (*model.Purchase, error)
}

type purchaseRepo struct {
	db *gorm.DB
}

// NewPurchaseRepo 创建 PurchaseRepository 实例
func NewPurchaseRepo(db *gorm.DB) PurchaseRepository {
	return &purchaseRepo{db: db}
}

func (r *purchaseRepo) Create(ctx context.Context, purchase *model.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *purchaseRepo) GetByOrderID(ctx context.Context, orderID string) (*model.Purchase, error) {
	var p model.Purchase
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
