package repository

import (
	"context"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫が足りるときだけ減らす
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, storeProductID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.StoreProduct{}).
		Where("id = ? AND stock_quantity >= ?", storeProductID, qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))

	if res.Error != nil {
		if isCheckViolation(res.Error) {
			return false, nil
		}
		return false, translateError(res.Error)
	}
	return decrementOutcome(res.RowsAffected, func() (bool, error) {
		return r.exists(ctx, storeProductID)
	})
}

// 0行なら、在庫不足か行が無いかを見分ける
func decrementOutcome(affected int64, exists func() (bool, error)) (bool, error) {
	if affected > 0 {
		return true, nil
	}
	found, err := exists()
	if err != nil {
		return false, err
	}
	if !found {
		return false, repo.ErrNotFound
	}
	return false, nil
}

func (r *InventoryGormRepository) exists(ctx context.Context, storeProductID int64) (bool, error) {
	var found bool
	err := r.db.WithContext(ctx).
		Raw("SELECT EXISTS (SELECT 1 FROM stores_products WHERE id = ?)", storeProductID).
		Scan(&found).Error
	if err != nil {
		return false, translateError(err)
	}
	return found, nil
}

// 在庫戻し（キャンセル）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, storeProductID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.StoreProduct{}).
		Where("id = ?", storeProductID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", qty))

	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 販売数（配達完了）
func (r *InventoryGormRepository) IncreaseSold(ctx context.Context, storeProductID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.StoreProduct{}).
		Where("id = ?", storeProductID).
		Update("sold", gorm.Expr("sold + ?", qty))

	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *InventoryGormRepository) RecordMovement(ctx context.Context, m model.InventoryMovement) error {
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translateError(err)
	}
	return nil
}
