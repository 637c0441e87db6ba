package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// stores_productsの在庫/販売数。読み取ってから書く使い方はしない
type InventoryRepository interface {
	// 在庫が足りるときだけ減算（1文の条件付きUPDATE）
	DecreaseStockIfEnough(ctx context.Context, storeProductID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセル）
	IncreaseStock(ctx context.Context, storeProductID int64, qty int64) error

	// 販売数の加算（配達完了）
	IncreaseSold(ctx context.Context, storeProductID int64, qty int64) error

	// 在庫の動きを記録。同じ購入・同じ種類が既にあればErrDuplicate
	RecordMovement(ctx context.Context, m model.InventoryMovement) error
}
