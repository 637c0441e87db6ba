package model

import "time"

type MovementKind string

const (
	MovementReserve MovementKind = "RESERVE"
	MovementRelease MovementKind = "RELEASE"
	MovementSale    MovementKind = "SALE"
)

// 在庫の動きの履歴。同じ購入に同じ種類は1回だけ
type InventoryMovement struct {
	ID             int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreProductID int64        `gorm:"not null;index" json:"stores_products_id"`
	PurchaseID     int64        `gorm:"not null;uniqueIndex:ux_movement_purchase_kind" json:"purchase_id"`
	Kind           MovementKind `gorm:"type:varchar(16);not null;uniqueIndex:ux_movement_purchase_kind" json:"kind"`
	Quantity       int64        `gorm:"not null;check:quantity > 0" json:"quantity"`
	CreatedAt      time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
}
