package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// カタログ側は読むだけ
type StoreProductRepository interface {
	FindByID(ctx context.Context, storeProductID int64) (model.StoreProduct, error)
}
