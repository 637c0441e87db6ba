package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type ShippingGormRepository struct {
	db *gorm.DB
}

func NewShippingGormRepository(db *gorm.DB) *ShippingGormRepository {
	return &ShippingGormRepository{db: db}
}

func (r *ShippingGormRepository) Create(ctx context.Context, s model.Shipping) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return 0, translateError(err)
	}
	return s.ID, nil
}

func (r *ShippingGormRepository) FindByID(ctx context.Context, shippingID int64) (model.Shipping, error) {
	var s model.Shipping
	if err := r.db.WithContext(ctx).Where("id = ?", shippingID).First(&s).Error; err != nil {
		return model.Shipping{}, translateError(err)
	}
	return s, nil
}

func (r *ShippingGormRepository) Touch(ctx context.Context, shippingID int64, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Shipping{}).
		Where("id = ?", shippingID).
		Update("updated_at", now)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
