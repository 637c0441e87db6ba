package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 顧客×ストア商品の1行。カートにある間も購入後も同じ行を使う
type Purchase struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"not null;index" json:"user_id"`
	StoreProductID int64           `gorm:"not null;index" json:"stores_products_id"`
	Quantity       int64           `gorm:"not null;check:quantity > 0" json:"quantity"`
	TotalPrice     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_price"`
	Status         PurchaseStatus  `gorm:"type:varchar(32);not null;index" json:"status"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`

	StoreProduct *StoreProduct `gorm:"foreignKey:StoreProductID" json:"store_product,omitempty"`
	Shipping     *Shipping     `gorm:"foreignKey:PurchaseID" json:"shipping,omitempty"`
}

// 数量×単価
func LineTotal(unitPrice decimal.Decimal, qty int64) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(qty))
}

type Shipping struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID int64     `gorm:"not null;uniqueIndex" json:"purchase_id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}
