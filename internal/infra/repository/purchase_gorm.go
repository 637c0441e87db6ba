package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseGormRepository struct {
	db *gorm.DB
}

func NewPurchaseGormRepository(db *gorm.DB) *PurchaseGormRepository {
	return &PurchaseGormRepository{db: db}
}

func (r *PurchaseGormRepository) FindByID(ctx context.Context, purchaseID int64) (model.Purchase, error) {
	var p model.Purchase
	err := r.db.WithContext(ctx).Where("id = ?", purchaseID).First(&p).Error
	if err != nil {
		return model.Purchase{}, translateError(err)
	}
	return p, nil
}

func (r *PurchaseGormRepository) FindByIDForUpdate(ctx context.Context, purchaseID int64) (model.Purchase, error) {
	var p model.Purchase
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", purchaseID).
		First(&p).Error
	if err != nil {
		return model.Purchase{}, translateError(err)
	}
	return p, nil
}

func (r *PurchaseGormRepository) FindInCartForUpdate(ctx context.Context, userID int64, storeProductID int64) (model.Purchase, error) {
	var p model.Purchase
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND store_product_id = ? AND status = ?", userID, storeProductID, model.PurchaseStatusInCart).
		First(&p).Error
	if err != nil {
		return model.Purchase{}, translateError(err)
	}
	return p, nil
}

func (r *PurchaseGormRepository) Create(ctx context.Context, p model.Purchase) (int64, error) {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&p).Error; err != nil {
		return 0, translateError(err)
	}
	return p.ID, nil
}

func (r *PurchaseGormRepository) UpdateQuantity(ctx context.Context, purchaseID int64, qty int64, total decimal.Decimal, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ?", purchaseID).
		Updates(map[string]interface{}{
			"quantity":    qty,
			"total_price": total,
			"updated_at":  now,
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *PurchaseGormRepository) TransitionStatus(ctx context.Context, purchaseID int64, from, to model.PurchaseStatus, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": now,
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	//別のTxが先に進めた
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *PurchaseGormRepository) BatchTransitionStatus(ctx context.Context, userID int64, ids []int64, from, to model.PurchaseStatus, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("user_id = ? AND id IN ? AND status = ?", userID, ids, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *PurchaseGormRepository) DeleteInCart(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ? AND status = ?", userID, ids, model.PurchaseStatusInCart).
		Delete(&model.Purchase{})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *PurchaseGormRepository) List(ctx context.Context, f repo.PurchaseListFilter) ([]model.Purchase, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}

	q := r.db.WithContext(ctx).Model(&model.Purchase{})

	//status 絞り込み（ALLならnil）
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	//本人のみ
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Purchase{}, 0, translateError(err)
	}

	var items []model.Purchase
	offset := (f.Page - 1) * f.Limit
	err := q.Preload("StoreProduct").
		Preload("Shipping").
		Order("created_at desc").
		Order("id desc").
		Limit(f.Limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Purchase{}, 0, translateError(err)
	}

	return items, total, nil
}
