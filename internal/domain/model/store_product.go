package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ストアが出品している商品。在庫と販売数はInventory経由でしか変えない
type StoreProduct struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID       int64           `gorm:"not null;index" json:"store_id"`
	ProductID     int64           `gorm:"not null;index" json:"product_id"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	StockQuantity int64           `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
	Sold          int64           `gorm:"not null;default:0;check:sold >= 0" json:"sold"`
	Rating        float64         `gorm:"not null;default:0" json:"rating"`
	View          int64           `gorm:"not null;default:0" json:"view"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (StoreProduct) TableName() string {
	return "stores_products"
}
