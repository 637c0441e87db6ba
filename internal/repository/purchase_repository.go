package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
)

type PurchaseListFilter struct {
	Page  int
	Limit int
	//nilなら全ステータス
	Status *model.PurchaseStatus
	//nilなら全ユーザー（スタッフ用）
	UserID *int64
}

type PurchaseRepository interface {
	FindByID(ctx context.Context, purchaseID int64) (model.Purchase, error)
	// SELECT ... FOR UPDATE
	FindByIDForUpdate(ctx context.Context, purchaseID int64) (model.Purchase, error)
	// (user, store_product) のIN_CART行を行ロック付きで取る
	FindInCartForUpdate(ctx context.Context, userID int64, storeProductID int64) (model.Purchase, error)

	// 部分ユニーク制約に当たったらErrDuplicate
	Create(ctx context.Context, p model.Purchase) (int64, error)
	UpdateQuantity(ctx context.Context, purchaseID int64, qty int64, total decimal.Decimal, now time.Time) error

	// fromのときだけtoへ。0件ならErrConflict
	TransitionStatus(ctx context.Context, purchaseID int64, from, to model.PurchaseStatus, now time.Time) error
	// 本人のfrom行だけまとめてtoへ。更新件数を返す
	BatchTransitionStatus(ctx context.Context, userID int64, ids []int64, from, to model.PurchaseStatus, now time.Time) (int64, error)

	// 本人のIN_CART行だけ削除。削除件数を返す
	DeleteInCart(ctx context.Context, userID int64, ids []int64) (int64, error)

	// store_product と shipping を含めて新しい順
	List(ctx context.Context, f PurchaseListFilter) ([]model.Purchase, int64, error)
}
