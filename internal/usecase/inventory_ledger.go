package usecase

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	//同じ購入に対してRELEASE/SALEを二度やろうとした
	ErrMovementApplied = errors.New("inventory movement already applied")
)

// 在庫の3つの原子操作。必ず呼び出し側のTx内のInventoryRepositoryで作る
type InventoryLedger struct {
	inv repo.InventoryRepository
}

func NewInventoryLedger(inv repo.InventoryRepository) *InventoryLedger {
	return &InventoryLedger{inv: inv}
}

// 在庫 >= qty のときだけ減らす
func (l *InventoryLedger) Reserve(ctx context.Context, storeProductID, purchaseID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ok, err := l.inv.DecreaseStockIfEnough(ctx, storeProductID, qty)
	if err != nil {
		return fmt.Errorf("decrease stock %d: %w", storeProductID, err)
	}
	if !ok {
		return ErrInsufficientStock
	}
	return l.record(ctx, storeProductID, purchaseID, model.MovementReserve, qty)
}

// キャンセル時の在庫戻し
func (l *InventoryLedger) Release(ctx context.Context, storeProductID, purchaseID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	//先に履歴を入れる。二重なら在庫は触らない
	if err := l.record(ctx, storeProductID, purchaseID, model.MovementRelease, qty); err != nil {
		return err
	}
	if err := l.inv.IncreaseStock(ctx, storeProductID, qty); err != nil {
		return fmt.Errorf("increase stock %d: %w", storeProductID, err)
	}
	return nil
}

// 配達完了時の販売数加算
func (l *InventoryLedger) RecordSale(ctx context.Context, storeProductID, purchaseID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := l.record(ctx, storeProductID, purchaseID, model.MovementSale, qty); err != nil {
		return err
	}
	if err := l.inv.IncreaseSold(ctx, storeProductID, qty); err != nil {
		return fmt.Errorf("increase sold %d: %w", storeProductID, err)
	}
	return nil
}

func (l *InventoryLedger) record(ctx context.Context, storeProductID, purchaseID int64, kind model.MovementKind, qty int64) error {
	err := l.inv.RecordMovement(ctx, model.InventoryMovement{
		StoreProductID: storeProductID,
		PurchaseID:     purchaseID,
		Kind:           kind,
		Quantity:       qty,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return ErrMovementApplied
	}
	if err != nil {
		return fmt.Errorf("record %s movement: %w", kind, err)
	}
	return nil
}
