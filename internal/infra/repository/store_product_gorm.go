package repository

import (
	"context"

	"marketplace/internal/domain/model"

	"gorm.io/gorm"
)

type StoreProductGormRepository struct {
	db *gorm.DB
}

func NewStoreProductGormRepository(db *gorm.DB) *StoreProductGormRepository {
	return &StoreProductGormRepository{db: db}
}

func (r *StoreProductGormRepository) FindByID(ctx context.Context, storeProductID int64) (model.StoreProduct, error) {
	var sp model.StoreProduct
	if err := r.db.WithContext(ctx).Where("id = ?", storeProductID).First(&sp).Error; err != nil {
		return model.StoreProduct{}, translateError(err)
	}
	return sp, nil
}
