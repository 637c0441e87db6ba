package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Purchases() PurchaseRepository
	StoreProducts() StoreProductRepository
	Inventory() InventoryRepository
	Shippings() ShippingRepository
	AuditLogs() AuditLogRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
// fnがエラーを返したらrollback。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
