package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

type ShippingRepository interface {
	// 1購入1件。2件目はErrDuplicate
	Create(ctx context.Context, s model.Shipping) (int64, error)
	FindByID(ctx context.Context, shippingID int64) (model.Shipping, error)
	Touch(ctx context.Context, shippingID int64, now time.Time) error
}
