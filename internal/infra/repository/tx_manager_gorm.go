package repository

import (
	"context"

	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	purchases     repo.PurchaseRepository
	storeProducts repo.StoreProductRepository
	inventory     repo.InventoryRepository
	shippings     repo.ShippingRepository
	auditLogs     repo.AuditLogRepository
}

func (r *txReposGorm) Purchases() repo.PurchaseRepository         { return r.purchases }
func (r *txReposGorm) StoreProducts() repo.StoreProductRepository { return r.storeProducts }
func (r *txReposGorm) Inventory() repo.InventoryRepository        { return r.inventory }
func (r *txReposGorm) Shippings() repo.ShippingRepository         { return r.shippings }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

func newTxRepos(db *gorm.DB) *txReposGorm {
	return &txReposGorm{
		purchases:     NewPurchaseGormRepository(db),
		storeProducts: NewStoreProductGormRepository(db),
		inventory:     NewInventoryGormRepository(db),
		shippings:     NewShippingGormRepository(db),
		auditLogs:     NewAuditLogGormRepository(db),
	}
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	var fnErr error
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		fnErr = fn(newTxRepos(tx))
		return fnErr
	})
	if err == nil {
		return nil
	}
	// fnのエラーはそのまま。commit失敗だけ寄せる
	if fnErr != nil {
		return fnErr
	}
	return translateError(err)
}
